package koanf

import "time"

type ElasticSearch struct {
	Address      string `koanf:"address"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	Insecure     bool   `koanf:"insecure"`
	IsOpenSearch bool   `koanf:"is_open_search"`
	AwsRegion    string `koanf:"aws_region"`
}

type S3 struct {
	Region       string `koanf:"region"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	SessionToken string `koanf:"session_token"`
	RoleArn      string `koanf:"role_arn"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `koanf:"endpoint"`
	Prefix   string `koanf:"prefix"`
}

type Backup struct {
	BatchSize       int           `koanf:"batch_size" validate:"gt=0"`
	Format          string        `koanf:"format" validate:"oneof=zip tar.gz"`
	ScrollSize      int           `koanf:"scroll_size" validate:"gt=0"`
	ScrollKeepAlive time.Duration `koanf:"scroll_keep_alive"`
}

type Bulk struct {
	ChunkSize int `koanf:"chunk_size" validate:"gt=0"`
}
