package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
)

// ModelSaver persists a trained artifact
type ModelSaver interface {
	Save(m *model.Model) error
}

// ObservationSource reads stored measurements; segmentID 0 selects every segment
type ObservationSource interface {
	QueryObservations(ctx context.Context, segmentID int, from, to time.Time) ([]domain.Observation, error)
}

// Options tunes a Pipeline
type Options struct {
	MinRows     int
	Parallelism int
	Now         func() time.Time
}

// Pipeline fits and saves one model per segment
type Pipeline struct {
	store ModelSaver
	opts  Options
	log   logrus.FieldLogger
}

// SegmentResult is the outcome for one segment
type SegmentResult struct {
	SegmentID   int     `json:"segmento_id"`
	Rows        int     `json:"filas"`
	Version     string  `json:"version,omitempty"`
	R2          float64 `json:"r2,omitempty"`
	ResidualStd float64 `json:"residual_std,omitempty"`
	Skipped     bool    `json:"omitido"`
	Reason      string  `json:"motivo,omitempty"`
}

// Report summarizes a pipeline run, ordered by segment id
type Report struct {
	Segments []SegmentResult `json:"segmentos"`
	Trained  int             `json:"entrenados"`
	Skipped  int             `json:"omitidos"`
}

// NewPipeline creates a training pipeline
func NewPipeline(store ModelSaver, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.MinRows <= 0 {
		opts.MinRows = model.DefaultMinRows
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{store: store, opts: opts, log: log}
}

// Run groups observations by segment, trains every segment with enough rows and saves the
// artifacts. Segments below MinRows are skipped and reported; any other failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, obs []domain.Observation) (*Report, error) {
	bySegment := make(map[int][]domain.Observation)
	for _, o := range obs {
		bySegment[o.SegmentID] = append(bySegment[o.SegmentID], o)
	}
	ids := make([]int, 0, len(bySegment))
	for id := range bySegment {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	results := make([]SegmentResult, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.trainSegment(id, bySegment[id])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Segments: results}
	for _, r := range results {
		if r.Skipped {
			report.Skipped++
		} else {
			report.Trained++
		}
	}
	return report, nil
}

// RunStored trains from the measurements stored in [from, to)
func (p *Pipeline) RunStored(ctx context.Context, src ObservationSource, from, to time.Time) (*Report, error) {
	obs, err := src.QueryObservations(ctx, 0, from, to)
	if err != nil {
		return nil, fmt.Errorf("training: failed to read measurements: %w", err)
	}
	p.log.WithFields(logrus.Fields{"rows": len(obs), "from": from, "to": to}).Info("Measurements loaded")
	return p.Run(ctx, obs)
}

func (p *Pipeline) trainSegment(segmentID int, obs []domain.Observation) (SegmentResult, error) {
	log := p.log.WithFields(logrus.Fields{"segment_id": segmentID, "rows": len(obs)})
	res := SegmentResult{SegmentID: segmentID, Rows: len(obs)}

	m, err := model.Train(segmentID, obs, model.TrainOptions{MinRows: p.opts.MinRows, Now: p.opts.Now})
	if errors.Is(err, model.ErrNotEnoughData) {
		log.Warn("Not enough rows, skipping segment")
		res.Skipped = true
		res.Reason = err.Error()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("training: segment %d: %w", segmentID, err)
	}
	if err := p.store.Save(m); err != nil {
		return res, fmt.Errorf("training: failed to save segment %d: %w", segmentID, err)
	}

	res.Version = m.Version
	res.R2 = m.R2
	res.ResidualStd = m.ResidualStd
	log.WithFields(logrus.Fields{
		"version":  m.Version,
		"r2":       m.R2,
		"features": len(m.Features),
	}).Info("Segment model trained")
	return res, nil
}
