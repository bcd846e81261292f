package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/pkg/index"
	indexBadger "github.com/poolfs/poolfs/pkg/index/badger"
	indexMemory "github.com/poolfs/poolfs/pkg/index/memory"
	"github.com/poolfs/poolfs/pkg/pool"
	poolFs "github.com/poolfs/poolfs/pkg/pool/fs"
	poolMemory "github.com/poolfs/poolfs/pkg/pool/memory"
	poolS3 "github.com/poolfs/poolfs/pkg/pool/s3"
)

// CreatePool creates a content pool based on configuration.
//
// The Type field selects the implementation; the matching type-specific map
// is decoded into that implementation's own config struct.
func CreatePool(ctx context.Context, cfg *PoolConfig) (pool.Pool, error) {
	switch cfg.Type {
	case "fs":
		return createFSPool(ctx, cfg.FS)
	case "memory":
		return poolMemory.New(), nil
	case "s3":
		return createS3Pool(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown pool type: %q (supported: fs, memory, s3)", cfg.Type)
	}
}

// createFSPool creates a filesystem-backed content pool.
func createFSPool(ctx context.Context, options map[string]any) (pool.Pool, error) {
	type FSPoolOptions struct {
		Root     string `mapstructure:"root"`
		DirPerm  uint32 `mapstructure:"dir_perm"`
		FilePerm uint32 `mapstructure:"file_perm"`
	}

	var opts FSPoolOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode fs pool config: %w", err)
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("fs pool: root is required")
	}

	p, err := poolFs.New(ctx, poolFs.Config{
		Root:     opts.Root,
		DirPerm:  os.FileMode(opts.DirPerm),
		FilePerm: os.FileMode(opts.FilePerm),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fs pool: %w", err)
	}

	logger.Info("Filesystem pool initialized: root=%s", opts.Root)
	return p, nil
}

// createS3Pool creates an S3-backed content pool.
func createS3Pool(ctx context.Context, options map[string]any) (pool.Pool, error) {
	type S3PoolOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var opts S3PoolOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 pool config: %w", err)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 pool: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 pool: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	// Custom endpoint supports MinIO, Localstack, and friends.
	if opts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, default credential chain otherwise.
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack compatibility.
		if opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	p, err := poolS3.New(ctx, poolS3.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 pool: %w", err)
	}

	logger.Info("S3 pool initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)
	return p, nil
}

// CreateIndex creates a file index based on configuration.
func CreateIndex(ctx context.Context, cfg *IndexConfig) (index.Index, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return indexMemory.New(), nil
	case "badger":
		return createBadgerIndex(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown index type: %q (supported: badger, memory)", cfg.Type)
	}
}

// createBadgerIndex creates a BadgerDB-backed persistent index.
func createBadgerIndex(ctx context.Context, options map[string]any) (index.Index, error) {
	type BadgerIndexOptions struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var opts BadgerIndexOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger index config: %w", err)
	}
	if opts.Path == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger index: path is required")
	}

	idx, err := indexBadger.New(ctx, indexBadger.Config{
		DBPath:   opts.Path,
		InMemory: opts.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger index: %w", err)
	}

	logger.Info("Badger index initialized: path=%s", opts.Path)
	return idx, nil
}
