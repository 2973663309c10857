package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"studioapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeDiscardUpload = "uploads:discard"
	QueueUploads      = "uploads"
)

type DiscardUploadPayload struct {
	ImageKey string `json:"image_key"`
}

func NewDiscardUploadTask(imageKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(DiscardUploadPayload{ImageKey: imageKey})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDiscardUpload, payload), nil
}

func HandleDiscardUploadTask(ctx context.Context, t *asynq.Task, storage services.ImageStorage, logger *zap.Logger) error {
	var p DiscardUploadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.ImageKey == "" {
		return fmt.Errorf("empty image key: %w", asynq.SkipRetry)
	}
	if err := storage.Delete(ctx, p.ImageKey); err != nil {
		logger.Error("failed to discard upload", zap.String("image_key", p.ImageKey), zap.Error(err))
		return err
	}
	logger.Info("discarded upload", zap.String("image_key", p.ImageKey))
	return nil
}

// Discarder removes the upload of a generation attempt that produced no
// record. With a queue client the delete runs on the worker, otherwise inline.
type Discarder struct {
	Client  *asynq.Client
	Storage services.ImageStorage
	Logger  *zap.Logger
}

func (d *Discarder) Discard(ctx context.Context, imageKey string) {
	ctx = context.WithoutCancel(ctx)
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if d.Client != nil {
		task, err := NewDiscardUploadTask(imageKey)
		if err == nil {
			_, err = d.Client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Queue(QueueUploads))
		}
		if err == nil {
			return
		}
		logger.Warn("could not enqueue upload discard, deleting inline", zap.String("image_key", imageKey), zap.Error(err))
	}

	if err := d.Storage.Delete(ctx, imageKey); err != nil {
		logger.Error("failed to discard upload", zap.String("image_key", imageKey), zap.Error(err))
		sentry.CaptureException(err)
	}
}
