package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/kaytu-io/elastic-companion/pkg/companion-es-sdk"
	"github.com/kaytu-io/elastic-companion/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultConfigFile = "companion.toml"

type app struct {
	configPath string
	url        string
	username   string
	password   string
	logLevel   string
	logFile    string

	cfg    config.Companion
	logger *zap.Logger
	client *companion.Client
	stdin  *bufio.Reader
}

func NewRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "companion",
		Short:         "CLI tool for Elasticsearch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.url, "url", "http://localhost:9200", "The host url to connect to")
	flags.StringVar(&a.logLevel, "log-level", "info", "The log level")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file, rotated by size")
	flags.StringVarP(&a.configPath, "config", "c", defaultConfigFile, "TOML configuration file, ignored when missing")
	flags.StringVar(&a.username, "username", "", "Basic auth user")
	flags.StringVar(&a.password, "password", "", "Basic auth password")

	cmd.AddCommand(
		a.healthCommand(),
		a.setupCommand(),
		a.reindexCommand(),
		a.deleteCommand(),
		a.backupCommand(),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("url") || cfg.ElasticSearch.Address == "" {
		cfg.ElasticSearch.Address = a.url
	}
	if flags.Changed("username") {
		cfg.ElasticSearch.Username = a.username
	}
	if flags.Changed("password") {
		cfg.ElasticSearch.Password = a.password
	}
	a.cfg = cfg

	a.logger, err = newLogger(a.logLevel, a.logFile)
	return err
}

// newLogger writes human readable logs to stderr and, with a file, JSON logs
// to a lumberjack rotated file.
func newLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), lvl),
	}
	if file != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, lvl))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

func (a *app) esClient() (*companion.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	a.logger.Info("connecting", zap.String("url", a.cfg.ElasticSearch.Address))
	client, err := companion.NewClient(a.cfg.ElasticSearch, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	a.client = client
	return client, nil
}
