package s3

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/justapithecus/datumo/datumo"
)

// Scheme is the URL scheme served by Factory.
const Scheme = "s3"

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region. Empty uses the default chain.
	Region string

	// Endpoint is an optional custom endpoint URL for S3-compatible
	// services.
	Endpoint string

	// UsePathStyle enables path-style addressing, needed by LocalStack and
	// MinIO in their default setup.
	UsePathStyle bool

	// AccessKey and SecretKey select static credentials. Empty uses the
	// default credential chain.
	AccessKey string
	SecretKey string
}

// NewClient creates an S3 client.
//
// For LocalStack:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://localhost:4566",
//	    UsePathStyle: true,
//	    AccessKey:    "test",
//	    SecretKey:    "test",
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Factory returns a datumo.StoreFactory for "s3://bucket/prefix" URLs.
// The query parameters region, endpoint and path_style override base.
func Factory(base ClientConfig) datumo.StoreFactory {
	return func(ctx context.Context, u *url.URL) (datumo.Store, error) {
		cfg, err := configFromURL(base, u)
		if err != nil {
			return nil, err
		}
		client, err := NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return New(client, Config{Bucket: u.Host, Prefix: u.Path})
	}
}

func configFromURL(base ClientConfig, u *url.URL) (ClientConfig, error) {
	if u.Host == "" {
		return base, errors.New("s3: bucket is required")
	}
	cfg := base
	q := u.Query()
	if v := q.Get("region"); v != "" {
		cfg.Region = v
	}
	if v := q.Get("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := q.Get("path_style"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, err
		}
		cfg.UsePathStyle = b
	}
	return cfg, nil
}
