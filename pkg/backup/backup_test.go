package backup_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/archive"
	"github.com/kaytu-io/elastic-companion/pkg/backup"
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/es/estest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seed(c *estest.Cluster) {
	for i := 0; i < 5; i++ {
		c.Put(es.Document{Index: "companiontest", Type: "simple", ID: fmt.Sprint(i), Source: map[string]any{"n": i}})
	}
	for i := 0; i < 3; i++ {
		c.Put(es.Document{Index: "companiontest", Type: "other", ID: fmt.Sprint(i), Source: map[string]any{"n": i}})
	}
}

func members(t *testing.T, path string) []string {
	t.Helper()
	var names []string
	switch {
	case filepath.Ext(path) == ".zip":
		r, err := zip.OpenReader(path)
		require.NoError(t, err)
		defer r.Close()
		for _, f := range r.File {
			names = append(names, f.Name)
		}
	default:
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		gr, err := gzip.NewReader(f)
		require.NoError(t, err)
		tr := tar.NewReader(gr)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			if hdr.Typeflag == tar.TypeReg {
				names = append(names, hdr.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func TestFetchBatchSizeDoesNotChangeMembership(t *testing.T) {
	for _, format := range []archive.Format{archive.FormatZip, archive.FormatTarGz} {
		t.Run(string(format), func(t *testing.T) {
			require := require.New(t)
			c := estest.NewCluster()
			seed(c)
			logger := zaptest.NewLogger(t)

			result := map[int]map[string][]string{}
			for _, batch := range []int{1, 10000} {
				ws, err := backup.Fetch(context.Background(), c, logger, backup.Options{
					Index:     "companiontest",
					Format:    format,
					BatchSize: batch,
					TempDir:   t.TempDir(),
				})
				require.NoError(err)
				require.NotNil(ws)
				require.Equal(8, ws.Documents)
				require.Len(ws.Archives, 2)

				byName := map[string][]string{}
				for _, a := range ws.Archives {
					byName[filepath.Base(a)] = members(t, a)
				}
				result[batch] = byName
				require.NoError(ws.Cleanup())
				require.NoDirExists(ws.Dir)
			}

			require.Equal(result[1], result[10000])
			ext := "." + string(format)
			require.Len(result[1]["companiontest_simple"+ext], 5)
			require.Len(result[1]["companiontest_other"+ext], 3)
			require.Contains(result[1]["companiontest_other"+ext], "companiontest_other/companiontest_other_0.json")
		})
	}
}

func TestFetchMissingIndex(t *testing.T) {
	for _, format := range []archive.Format{archive.FormatZip, archive.FormatTarGz} {
		t.Run(string(format), func(t *testing.T) {
			require := require.New(t)
			tmp := t.TempDir()

			ws, err := backup.Fetch(context.Background(), estest.NewCluster(), zaptest.NewLogger(t), backup.Options{
				Index:   "missing",
				Format:  format,
				TempDir: tmp,
			})
			require.NoError(err)
			require.Nil(ws)
			require.NoError(ws.Cleanup())

			entries, err := os.ReadDir(tmp)
			require.NoError(err)
			require.Empty(entries)
		})
	}
}

func TestFetchRejectsUnknownFormat(t *testing.T) {
	c := estest.NewCluster()
	seed(c)
	_, err := backup.Fetch(context.Background(), c, zaptest.NewLogger(t), backup.Options{
		Index:  "companiontest",
		Format: "rar",
	})
	require.ErrorIs(t, err, archive.ErrUnknownFormat)
}

type failingScanner struct {
	*estest.Cluster
}

func (failingScanner) Scan(context.Context, string, es.ScanOptions) (es.Cursor, error) {
	return nil, errors.New("boom")
}

func TestFetchRemovesWorkspaceOnError(t *testing.T) {
	require := require.New(t)
	c := estest.NewCluster()
	seed(c)
	tmp := t.TempDir()

	_, err := backup.Fetch(context.Background(), failingScanner{c}, zaptest.NewLogger(t), backup.Options{
		Index:   "companiontest",
		TempDir: tmp,
	})
	require.ErrorContains(err, "boom")

	entries, err := os.ReadDir(tmp)
	require.NoError(err)
	require.Empty(entries)
}

func TestAccumulatorFlushWithoutRecords(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()
	archiver, err := archive.New(archive.FormatZip, archive.Options{Append: true, DeleteOriginal: true})
	require.NoError(err)

	acc := backup.NewAccumulator(root, archiver, 2, zaptest.NewLogger(t))
	require.NoError(acc.Flush())
	require.NoError(acc.Close())
	require.Empty(acc.Archives())

	entries, err := os.ReadDir(root)
	require.NoError(err)
	require.Empty(entries)
}

func TestAccumulatorFlushesOnBatchSize(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()
	archiver, err := archive.New(archive.FormatZip, archive.Options{Append: true, DeleteOriginal: true})
	require.NoError(err)

	acc := backup.NewAccumulator(root, archiver, 2, zaptest.NewLogger(t))
	require.NoError(acc.Add(es.Document{Index: "i", ID: "1"}))
	require.Empty(acc.Archives())
	require.DirExists(filepath.Join(root, "i__doc"))

	require.NoError(acc.Add(es.Document{Index: "i", ID: "2"}))
	require.Equal([]string{filepath.Join(root, "i__doc.zip")}, acc.Archives())
	require.NoDirExists(filepath.Join(root, "i__doc"))

	require.NoError(acc.Add(es.Document{Index: "i", ID: "3"}))
	require.NoError(acc.Close())
	require.Equal([]string{"i__doc/i__doc_1.json", "i__doc/i__doc_2.json", "i__doc/i__doc_3.json"}, members(t, acc.Archives()[0]))
}

type fakeStore struct {
	objects map[string][]byte
	err     error
}

func (s *fakeStore) PutObject(_ context.Context, bucket, key string, body io.Reader) error {
	if s.err != nil {
		return s.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = buf.Bytes()
	return nil
}

func TestS3UploadsArchives(t *testing.T) {
	require := require.New(t)
	c := estest.NewCluster()
	seed(c)
	store := &fakeStore{objects: map[string][]byte{}}
	tmp := t.TempDir()
	now := time.Date(2015, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	keys, err := backup.S3(context.Background(), c, store, zaptest.NewLogger(t), backup.S3Options{
		Options: backup.Options{Index: "companiontest", TempDir: tmp},
		Bucket:  "my-bucket",
		Now:     func() time.Time { return now },
	})
	require.NoError(err)
	require.Equal([]string{
		"clibackup/2015/01/02_020405_companiontest_other.zip",
		"clibackup/2015/01/02_020405_companiontest_simple.zip",
	}, keys)
	require.Len(store.objects, 2)
	require.NotEmpty(store.objects["my-bucket/clibackup/2015/01/02_020405_companiontest_simple.zip"])

	entries, err := os.ReadDir(tmp)
	require.NoError(err)
	require.Empty(entries)
}

func TestS3UploadErrorCleansUp(t *testing.T) {
	require := require.New(t)
	c := estest.NewCluster()
	seed(c)
	tmp := t.TempDir()

	_, err := backup.S3(context.Background(), c, &fakeStore{err: errors.New("denied")}, zaptest.NewLogger(t), backup.S3Options{
		Options: backup.Options{Index: "companiontest", TempDir: tmp},
		Bucket:  "my-bucket",
	})
	require.ErrorContains(err, "denied")

	entries, err := os.ReadDir(tmp)
	require.NoError(err)
	require.Empty(entries)
}

func TestS3RequiresBucket(t *testing.T) {
	_, err := backup.S3(context.Background(), estest.NewCluster(), &fakeStore{}, zaptest.NewLogger(t), backup.S3Options{
		Options: backup.Options{Index: "companiontest"},
	})
	require.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)
	require.Equal(t, "backups/2024/12/31_235958_idx_doc.tar.gz", backup.ObjectKey("backups", now, "/tmp/x/idx_doc.tar.gz"))
	require.Equal(t, "clibackup/2024/12/31_235958_a.zip", backup.ObjectKey("", now, "a.zip"))
}
