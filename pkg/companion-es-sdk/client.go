package companion

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/kaytu-io/elastic-companion/pkg/koanf"
	"github.com/opensearch-project/opensearch-go/v2"
	signer "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"
	"go.uber.org/zap"
)

type Client struct {
	es     *opensearch.Client
	logger *zap.Logger
}

// NewClient builds a client for an Elasticsearch or OpenSearch cluster.
// Empty settings fall back to ES_ADDRESS, ES_USERNAME and ES_PASSWORD.
func NewClient(c koanf.ElasticSearch, logger *zap.Logger) (*Client, error) {
	if len(c.Address) == 0 {
		c.Address = os.Getenv("ES_ADDRESS")
	}
	if len(c.Username) == 0 {
		c.Username = os.Getenv("ES_USERNAME")
	}
	if len(c.Password) == 0 {
		c.Password = os.Getenv("ES_PASSWORD")
	}

	var addresses []string
	for _, address := range strings.Split(c.Address, ",") {
		if address = strings.TrimSpace(address); address != "" {
			addresses = append(addresses, address)
		}
	}

	cfg := opensearch.Config{
		Addresses:           addresses,
		Username:            c.Username,
		Password:            c.Password,
		CompressRequestBody: true,
		RetryOnStatus:       []int{502, 503, 504, 429},
		MaxRetries:          3,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: c.Insecure, //nolint,gosec
			},
		},
	}

	if c.IsOpenSearch {
		awsConfig, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, err
		}
		if c.AwsRegion != "" {
			awsConfig.Region = c.AwsRegion
		}
		awsSigner, err := signer.NewSigner(awsConfig)
		if err != nil {
			return nil, err
		}
		cfg.Signer = awsSigner
	}

	es, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{es: es, logger: logger.Named("es")}, nil
}
