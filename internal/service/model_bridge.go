package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/metrics"
	"github.com/loschorros/backend/internal/model"
)

// ModelSource loads the trained model of a segment
type ModelSource interface {
	Load(ctx context.Context, segmentID int) (*model.Model, error)
}

// ModelBridge bounds artifact loads from the model store by a timeout
type ModelBridge struct {
	store   *model.Store
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewModelBridge creates a new model bridge
func NewModelBridge(store *model.Store, timeout time.Duration, log logrus.FieldLogger) *ModelBridge {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ModelBridge{store: store, timeout: timeout, log: log}
}

// Load returns the model of a segment. A load that outlives the timeout fails with
// ErrModelUnavailable; a missing artifact keeps domain.ErrModelNotFound.
func (b *ModelBridge) Load(ctx context.Context, segmentID int) (*model.Model, error) {
	loadCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	m, err := b.store.Load(loadCtx, segmentID)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		metrics.ModelLoadFailures.WithLabelValues("timeout").Inc()
		b.log.WithFields(logrus.Fields{"segment_id": segmentID, "timeout": b.timeout}).Warn("model load timed out")
		return nil, fmt.Errorf("model_bridge: segment %d: %w", segmentID, ErrModelUnavailable)
	}
	return nil, err
}

// Health checks that the artifact directory is readable
func (b *ModelBridge) Health(ctx context.Context) error {
	info, err := os.Stat(b.store.Dir())
	if err != nil {
		return fmt.Errorf("model_bridge: artifact dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("model_bridge: %s is not a directory", b.store.Dir())
	}
	return nil
}
