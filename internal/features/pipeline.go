// Package features computes the derived per-cell feature rows from normalized
// telemetry: causal sequence aggregates, synthesized row-local metrics, and
// the forward-horizon training target. The pipeline walks the stored sample
// span in contiguous time chunks and rewrites each chunk's feature rows
// atomically, so reruns over unchanged input are idempotent.
package features

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/cellular.report/internal/config"
	"github.com/banshee-data/cellular.report/internal/db"
	"github.com/banshee-data/cellular.report/internal/monitoring"
	"github.com/banshee-data/cellular.report/internal/timeutil"
)

// chunkEpsilon separates consecutive chunk bounds. Chunks are inclusive on
// both ends, so the next chunk starts one tick after the previous end.
const chunkEpsilon = time.Microsecond

// Pipeline runs the feature computation over the stored sample span.
type Pipeline struct {
	store   *db.DB
	cfg     *config.FeatureConfig
	clock   timeutil.Clock
	agg     *Aggregator
	synth   *Synthesizer
	labeler *Labeler
}

func NewPipeline(store *db.DB, cfg *config.FeatureConfig) *Pipeline {
	return &Pipeline{
		store:   store,
		cfg:     cfg,
		clock:   timeutil.RealClock{},
		agg:     NewAggregator(cfg),
		synth:   NewSynthesizer(cfg),
		labeler: NewLabeler(cfg),
	}
}

// SetClock replaces the pipeline clock, used by tests to drive loop mode.
func (p *Pipeline) SetClock(c timeutil.Clock) {
	p.clock = c
}

// RunSummary reports the outcome of one full pass over the sample span.
type RunSummary struct {
	RunID   string
	Chunks  int
	Rows    int64
	Skipped int
	Failed  int
}

// Run executes one full pass: it reads the sample span, splits it into
// contiguous chunks, and processes each chunk in order. A failed chunk is
// logged and recorded, then the pass continues with the next chunk; only
// an unreadable span or a cancelled context abort the pass.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	minTs, maxTs, count, err := p.store.SpanSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine sample span: %w", err)
	}

	summary := &RunSummary{RunID: db.NewRunID()}
	if count == 0 {
		monitoring.Logf("feature run %s: no samples, nothing to do", summary.RunID)
		return summary, nil
	}

	chunk := p.cfg.GetChunkDuration()
	monitoring.Logf("feature run %s: %d samples spanning [%s, %s], chunk %s",
		summary.RunID, count, minTs.UTC().Format(time.RFC3339),
		maxTs.UTC().Format(time.RFC3339), chunk)

	for start := minTs; !start.After(maxTs); {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := start.Add(chunk)
		if end.After(maxTs) {
			end = maxTs
		}

		summary.Chunks++
		rows, err := p.processChunk(ctx, start, end)
		run := db.FeatureRun{
			RunID:      summary.RunID,
			ChunkStart: start,
			ChunkEnd:   end,
			RowCount:   int64(rows),
		}
		switch {
		case err != nil:
			msg := err.Error()
			run.Status = db.RunStatusFailed
			run.Error = &msg
			summary.Failed++
			monitoring.Chunkf(start, end, "processing failed: %v", err)
		case rows == 0:
			run.Status = db.RunStatusSkipped
			summary.Skipped++
		default:
			run.Status = db.RunStatusOK
			summary.Rows += int64(rows)
			monitoring.Chunkf(start, end, "wrote %d feature rows", rows)
		}
		if err := p.store.RecordFeatureRun(ctx, run); err != nil {
			monitoring.Chunkf(start, end, "failed to record run: %v", err)
		}

		start = end.Add(chunkEpsilon)
	}

	monitoring.Logf("feature run %s: %d chunks, %d rows, %d skipped, %d failed",
		summary.RunID, summary.Chunks, summary.Rows, summary.Skipped, summary.Failed)
	return summary, nil
}

// RunLoop runs full passes until the context is cancelled, sleeping the
// configured interval between passes. Pass errors are logged, not returned.
func (p *Pipeline) RunLoop(ctx context.Context) error {
	interval := p.cfg.GetLoopInterval()
	for {
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("feature pass failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(interval):
		}
	}
}

// processChunk computes and atomically rewrites the feature rows for
// [start, end]. It reads a widened sample range so rolling windows near the
// chunk start see their full history and the horizon target near the chunk
// end sees its future sample, but only rows inside the chunk are written.
func (p *Pipeline) processChunk(ctx context.Context, start, end time.Time) (int, error) {
	fetchStart := start.Add(-p.agg.MaxWindow())
	fetchEnd := end.Add(p.cfg.GetHorizon())
	samples, err := p.store.SamplesInRange(ctx, fetchStart, fetchEnd)
	if err != nil {
		return 0, err
	}

	inChunk := false
	for i := range samples {
		if !samples[i].Ts.Before(start) && !samples[i].Ts.After(end) {
			inChunk = true
			break
		}
	}
	if !inChunk {
		return 0, nil
	}

	rows := p.computeRows(samples, start, end)
	if len(rows) == 0 {
		return 0, nil
	}

	if err := p.store.ReplaceChunkFeatures(ctx, start, end, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// computeRows derives the feature rows for every sample inside [start, end].
// Cells are processed independently on a bounded worker pool; the merged
// result is sorted by (cell, ts) so output ordering never depends on worker
// scheduling.
func (p *Pipeline) computeRows(samples []db.CleanSample, start, end time.Time) []db.FeatureRow {
	groups := groupByCell(samples)

	workers := p.cfg.GetWorkers()
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(groups) {
		workers = len(groups)
	}

	work := make(chan []db.CleanSample)
	var mu sync.Mutex
	var out []db.FeatureRow
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range work {
				rows := p.entityFeatures(group)
				kept := rows[:0]
				for i := range rows {
					if !rows[i].Ts.Before(start) && !rows[i].Ts.After(end) {
						kept = append(kept, rows[i])
					}
				}
				mu.Lock()
				out = append(out, kept...)
				mu.Unlock()
			}
		}()
	}
	for _, group := range groups {
		work <- group
	}
	close(work)
	wg.Wait()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CellID != out[j].CellID {
			return out[i].CellID < out[j].CellID
		}
		return out[i].Ts.Before(out[j].Ts)
	})
	return out
}

// entityFeatures runs the three per-cell stages in order: causal aggregates,
// row-local synthesis, forward-horizon labelling.
func (p *Pipeline) entityFeatures(samples []db.CleanSample) []db.FeatureRow {
	rows := p.agg.EntityRows(samples)
	for i := range rows {
		p.synth.Apply(&rows[i], &samples[i])
	}
	p.labeler.LabelEntity(rows)
	return rows
}

// groupByCell splits samples already sorted by (cell_id, ts) into per-cell
// subslices.
func groupByCell(samples []db.CleanSample) [][]db.CleanSample {
	var groups [][]db.CleanSample
	lo := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].CellID != samples[lo].CellID {
			groups = append(groups, samples[lo:i])
			lo = i
		}
	}
	return groups
}
