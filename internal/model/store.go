package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluele/gcache"

	"github.com/loschorros/backend/internal/domain"
)

// Store reads and writes model artifacts as segment_<id>.json under a directory,
// keeping recently loaded models in an LRU.
type Store struct {
	dir   string
	cache gcache.Cache
}

// NewStore creates a file store; size and ttl bound the in-memory LRU
func NewStore(dir string, size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 32
	}
	s := &Store{dir: dir}
	builder := gcache.New(size).LRU().LoaderFunc(func(key interface{}) (interface{}, error) {
		return s.read(key.(int))
	})
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	s.cache = builder.Build()
	return s
}

// Dir returns the artifact directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path of a segment
func (s *Store) Path(segmentID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("segment_%d.json", segmentID))
}

// Save writes the artifact atomically and drops any cached copy
func (s *Store) Save(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("model: failed to create %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("model: failed to marshal segment %d: %w", m.SegmentID, err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".segment_%d-*.json", m.SegmentID))
	if err != nil {
		return fmt.Errorf("model: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("model: failed to write segment %d: %w", m.SegmentID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("model: failed to close segment %d: %w", m.SegmentID, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(m.SegmentID)); err != nil {
		return fmt.Errorf("model: failed to store segment %d: %w", m.SegmentID, err)
	}

	s.cache.Remove(m.SegmentID)
	return nil
}

// Load returns the model of a segment, from the LRU when possible.
// It fails with domain.ErrModelNotFound when no artifact exists and with the
// context error when ctx ends first.
func (s *Store) Load(ctx context.Context, segmentID int) (*Model, error) {
	type result struct {
		m   *Model
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.cache.Get(segmentID)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{m: v.(*Model)}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("model: loading segment %d: %w", segmentID, ctx.Err())
	case r := <-done:
		return r.m, r.err
	}
}

// Purge empties the LRU so the next Load rereads from disk
func (s *Store) Purge() {
	s.cache.Purge()
}

func (s *Store) read(segmentID int) (*Model, error) {
	data, err := os.ReadFile(s.Path(segmentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("model: segment %d: %w", segmentID, domain.ErrModelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("model: failed to read segment %d: %w", segmentID, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: failed to decode segment %d: %w", segmentID, err)
	}
	if m.SegmentID != segmentID {
		return nil, fmt.Errorf("model: artifact %s belongs to segment %d", s.Path(segmentID), m.SegmentID)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
