package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"studioapi/services"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func saveUpload(t *testing.T) (*services.LocalStorage, string) {
	storage, err := services.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	key, err := storage.Save(context.Background(), "a.png", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	return storage, key
}

func TestNewDiscardUploadTask(t *testing.T) {
	task, err := NewDiscardUploadTask("abc.png")
	require.NoError(t, err)

	assert.Equal(t, TypeDiscardUpload, task.Type())
	var p DiscardUploadPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "abc.png", p.ImageKey)
}

func TestHandleDiscardUploadTask(t *testing.T) {
	storage, key := saveUpload(t)
	task, err := NewDiscardUploadTask(key)
	require.NoError(t, err)

	err = HandleDiscardUploadTask(context.Background(), task, storage, zap.NewNop())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(storage.Dir, key))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleDiscardUploadTaskBadPayload(t *testing.T) {
	storage, _ := saveUpload(t)

	err := HandleDiscardUploadTask(context.Background(), asynq.NewTask(TypeDiscardUpload, []byte("{")), storage, zap.NewNop())
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = HandleDiscardUploadTask(context.Background(), asynq.NewTask(TypeDiscardUpload, []byte(`{}`)), storage, zap.NewNop())
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDiscarderInlineWithoutQueue(t *testing.T) {
	storage, key := saveUpload(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Discarder{Storage: storage}
	d.Discard(ctx, key)

	_, err := os.Stat(filepath.Join(storage.Dir, key))
	assert.True(t, os.IsNotExist(err))
}
