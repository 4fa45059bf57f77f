package config

import (
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/koanf"
	"gopkg.in/go-playground/validator.v9"
)

const EnvPrefix = "companion"

type Companion struct {
	ElasticSearch koanf.ElasticSearch `koanf:"elasticsearch"`
	S3            koanf.S3            `koanf:"s3"`
	Backup        koanf.Backup        `koanf:"backup"`
	Bulk          koanf.Bulk          `koanf:"bulk"`
}

func Default() Companion {
	return Companion{
		ElasticSearch: koanf.ElasticSearch{
			Address: "http://localhost:9200",
		},
		S3: koanf.S3{
			Region: "eu-west-1",
			Prefix: "clibackup",
		},
		Backup: koanf.Backup{
			BatchSize:       10000,
			Format:          "zip",
			ScrollSize:      es.DefaultScrollSize,
			ScrollKeepAlive: es.DefaultScrollKeepAlive,
		},
		Bulk: koanf.Bulk{
			ChunkSize: 1000,
		},
	}
}

// Load layers the defaults, the optional TOML file at path and COMPANION_*
// environment variables, then validates the result.
func Load(path string) (Companion, error) {
	cfg, err := koanf.Provide(EnvPrefix, path, Default())
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Companion) Validate() error {
	return validator.New().Struct(c)
}
