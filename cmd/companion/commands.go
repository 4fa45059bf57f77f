package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/archive"
	"github.com/kaytu-io/elastic-companion/pkg/backup"
	"github.com/kaytu-io/elastic-companion/pkg/bulkdelete"
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/fp"
	"github.com/kaytu-io/elastic-companion/pkg/objectstore"
	"github.com/kaytu-io/elastic-companion/pkg/reindex"
	"github.com/kaytu-io/elastic-companion/pkg/setup"
	"github.com/spf13/cobra"
)

var healthLevels = []string{"cluster", "indices", "shards"}

func (a *app) healthCommand() *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Shows health of the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !fp.Includes(level, healthLevels) {
				return fmt.Errorf("invalid level %q, expected cluster, indices or shards", level)
			}
			client, err := a.esClient()
			if err != nil {
				return err
			}
			report, err := client.ClusterHealth(cmd.Context(), level)
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, report.Raw, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "cluster", "The status level: cluster, indices or shards")
	return cmd
}

func (a *app) setupCommand() *cobra.Command {
	var (
		reset    bool
		dataPath string
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Perform index setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reset {
				ok, err := a.confirm(cmd, `THIS WILL DELETE ALL DATA! Type "yes" if you are sure: `)
				if err != nil || !ok {
					return err
				}
			}
			client, err := a.esClient()
			if err != nil {
				return err
			}
			mapper, err := setup.NewIndexMapper(client, a.logger, dataPath, reset)
			if err != nil {
				return err
			}
			return mapper.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&reset, "reset", "r", false, "Delete indices before creating them. THIS DELETES ALL THEIR DATA")
	cmd.Flags().StringVarP(&dataPath, "data-path", "p", setup.DefaultDataPath, "Directory containing the setup data files")
	return cmd
}

func (a *app) reindexCommand() *cobra.Command {
	var (
		dateField string
		deleteDoc bool
		newIDs    bool
		query     string
		docType   string
		chunkSize int
		refresh   bool
		ranges    rangeFlags
	)
	cmd := &cobra.Command{
		Use:   "reindex SOURCE TARGET",
		Short: "Re-index an index",
		Long: `Copies the documents of SOURCE into TARGET. TARGET is either a plain index
name such as "myindex" or, together with --datefield, a date pattern such as
"myindex-{:%Y-%m-%d}" filled from the document's date field.`,
		Example: `  companion reindex event event-{:%Y} -d timestamp --deletedoc`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]
			body, err := queryFromFlags(query, &ranges)
			if err != nil {
				return err
			}
			if dateField != "" {
				tmpl, err := reindex.ParseIndexTemplate(target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Target index name would be for example: %s\n", tmpl.Render(time.Now()))
				ok, err := a.confirm(cmd, `Is this what you want? Type "yes" if you are sure: `)
				if err != nil || !ok {
					return err
				}
			}
			if deleteDoc {
				ok, err := a.confirm(cmd, `Source documents will be deleted. Type "yes" if you are sure: `)
				if err != nil || !ok {
					return err
				}
			}
			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = a.cfg.Bulk.ChunkSize
			}

			client, err := a.esClient()
			if err != nil {
				return err
			}
			stats, err := reindex.Run(cmd.Context(), client, a.logger, reindex.Options{
				Source:     source,
				Target:     target,
				DateField:  dateField,
				DeleteDocs: deleteDoc,
				UseSameID:  !newIDs,
				Query:      body,
				Type:       docType,
				ChunkSize:  chunkSize,
				ScrollSize: a.cfg.Backup.ScrollSize,
				KeepAlive:  a.cfg.Backup.ScrollKeepAlive,
			})
			if err != nil {
				return err
			}
			if refresh {
				if err := client.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d, failed: %d, unmapped: %d\n",
				stats.Bulk.Succeeded, stats.Bulk.Failed, stats.MappingFailures)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dateField, "datefield", "d", "", "The field to base the date on")
	cmd.Flags().BoolVar(&deleteDoc, "deletedoc", false, "Delete the source document")
	cmd.Flags().BoolVar(&newIDs, "new-ids", false, "Let the cluster assign new ids instead of keeping the source ids")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search body as JSON or the path of a JSON file")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Only documents of this type")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", reindex.DefaultChunkSize, "Operations per bulk request")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh indices once done so the copies are searchable")
	ranges.register(cmd)
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	var (
		query   string
		refresh bool
		ranges  rangeFlags
	)
	cmd := &cobra.Command{
		Use:   "delete INDEX [DOCTYPE]",
		Short: "Delete documents from an index",
		Long: `Deletes the documents of INDEX, optionally only those of DOCTYPE and those
matching --query. The query is either inline JSON or the path of a JSON file.`,
		Example: `  companion delete myindex mydoctype -q '{"query":{"bool":{"filter":{"range":{"timestamp":{"gt":"2015"}}}}}}'
  companion delete myindex mydoctype -q myquery.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := args[0]
			var docType string
			if len(args) > 1 {
				docType = args[1]
			}
			body, err := queryFromFlags(query, &ranges)
			if err != nil {
				return err
			}

			client, err := a.esClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			count, err := client.Count(cmd.Context(), index, es.ScanOptions{Query: body, Type: docType})
			if err != nil {
				return err
			}
			if body != nil {
				without, err := client.Count(cmd.Context(), index, es.ScanOptions{Type: docType})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "You specified a query. Please double check the data...")
				fmt.Fprintf(out, "Number of documents if query was empty: %d\n", without)
				fmt.Fprintf(out, "Number of documents with your query: %d\n", count)
			}
			fmt.Fprintf(out, "Will delete %d documents\n", count)
			ok, err := a.confirm(cmd, `Does this look correct? Type "yes" if you are sure: `)
			if err != nil || !ok {
				return err
			}

			stats, err := bulkdelete.Run(cmd.Context(), client, a.logger, bulkdelete.Options{
				Index:      index,
				Type:       docType,
				Query:      body,
				ChunkSize:  a.cfg.Bulk.ChunkSize,
				ScrollSize: a.cfg.Backup.ScrollSize,
				KeepAlive:  a.cfg.Backup.ScrollKeepAlive,
			})
			if err != nil {
				return err
			}
			if refresh {
				if err := client.Refresh(cmd.Context(), index); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "deleted: %d, failed: %d\n", stats.Succeeded, stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search body as JSON or the path of a JSON file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh the index once done")
	ranges.register(cmd)
	return cmd
}

func (a *app) backupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup an index",
	}
	cmd.AddCommand(a.backupS3Command())
	return cmd
}

func (a *app) backupS3Command() *cobra.Command {
	var (
		region    string
		user      string
		secret    string
		endpoint  string
		prefix    string
		format    string
		batchSize int
		docType   string
		query     string
	)
	cmd := &cobra.Command{
		Use:     "s3 INDEX BUCKET",
		Short:   "Backup to AWS S3",
		Example: `  companion backup s3 myindex mybucket -u myuser -s mysecret`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, bucket := args[0], args[1]
			flags := cmd.Flags()

			s3cfg := a.cfg.S3
			if flags.Changed("region") {
				s3cfg.Region = region
			}
			if flags.Changed("user") {
				s3cfg.AccessKey = user
			}
			if flags.Changed("secret") {
				s3cfg.SecretKey = secret
			}
			if flags.Changed("endpoint") {
				s3cfg.Endpoint = endpoint
			}
			if flags.Changed("prefix") {
				s3cfg.Prefix = prefix
			}
			if !flags.Changed("format") {
				format = a.cfg.Backup.Format
			}
			if !flags.Changed("batch-size") {
				batchSize = a.cfg.Backup.BatchSize
			}

			f, err := archive.ParseFormat(format)
			if err != nil {
				return err
			}
			body, err := parseQuery(query)
			if err != nil {
				return err
			}

			store, err := objectstore.NewS3(cmd.Context(), s3cfg)
			if err != nil {
				return err
			}
			client, err := a.esClient()
			if err != nil {
				return err
			}
			keys, err := backup.S3(cmd.Context(), client, store, a.logger, backup.S3Options{
				Options: backup.Options{
					Index:      index,
					Type:       docType,
					Query:      body,
					Format:     f,
					BatchSize:  batchSize,
					ScrollSize: a.cfg.Backup.ScrollSize,
					KeepAlive:  a.cfg.Backup.ScrollKeepAlive,
				},
				Bucket: bucket,
				Prefix: s3cfg.Prefix,
			})
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", bucket, key)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&region, "region", "r", "eu-west-1", "The name of aws region")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User key for s3")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Secret key for s3")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3 compatible endpoint, e.g. a MinIO url")
	cmd.Flags().StringVar(&prefix, "prefix", backup.DefaultKeyPrefix, "First segment of the object keys")
	cmd.Flags().StringVarP(&format, "format", "f", string(archive.FormatZip), "Archive format: zip or tar.gz. tar.gz keeps every raw record on disk until the backup ends")
	cmd.Flags().IntVar(&batchSize, "batch-size", backup.DefaultBatchSize, "Documents written between two archive flushes")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Only documents of this type")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search body as JSON or the path of a JSON file")
	return cmd
}
