package services

import (
	"context"
	"fmt"

	"studioapi/config"

	"go.uber.org/zap"
)

// NewImageStorage picks the storage backend named by STORAGE_DRIVER.
func NewImageStorage(ctx context.Context, cfg *config.Config) (ImageStorage, error) {
	switch cfg.StorageDriver {
	case config.StorageR2:
		return NewR2Storage(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2BucketName)
	case config.StorageLocal:
		return NewLocalStorage(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func NewProcessor(cfg *config.Config, storage ImageStorage, logger *zap.Logger) (Processor, error) {
	switch cfg.Processor {
	case config.ProcessorGemini:
		return &GeminiProcessor{
			APIKey:  cfg.GoogleAPIKey,
			Model:   Flash25Image,
			Storage: storage,
			Logger:  logger.Named("gemini"),
		}, nil
	case config.ProcessorSimulated:
		return NewSimulatedProcessor(), nil
	default:
		return nil, fmt.Errorf("unknown generation processor %q", cfg.Processor)
	}
}
