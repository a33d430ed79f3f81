package storage

import (
	"context"
	"fmt"
)

type Config struct {
	Driver string // local | s3

	LocalBaseDir   string
	LocalURLPrefix string

	S3 S3Config
}

type FactoryResult struct {
	Driver  string
	Storage Storage
}

// New builds the configured archive driver. Config comes from the caller;
// nothing here reads the environment.
func New(ctx context.Context, cfg Config) (FactoryResult, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "local"
	}

	switch driver {
	case "local":
		baseDir := cfg.LocalBaseDir
		if baseDir == "" {
			baseDir = "./storage/archive"
		}
		urlPrefix := cfg.LocalURLPrefix
		if urlPrefix == "" {
			urlPrefix = "/archive"
		}
		return FactoryResult{Driver: "local", Storage: NewLocal(baseDir, urlPrefix)}, nil

	case "s3":
		if cfg.S3.Region == "" || cfg.S3.Bucket == "" || cfg.S3.PublicBaseURL == "" {
			return FactoryResult{}, fmt.Errorf("s3 storage config missing: region, bucket, public base url required")
		}
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Driver: "s3", Storage: s}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
