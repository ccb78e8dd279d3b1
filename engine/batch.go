package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ValidateBatch validates files concurrently against one registry
// snapshot. Every file writes its own result slot, so results keep the
// input order. When ctx is cancelled the files that already finished are
// returned with the context error; unfinished files are dropped.
func (e *Engine) ValidateBatch(ctx context.Context, files []File) (*BatchResult, error) {
	reg := e.holder.Load()
	runID := uuid.New().String()
	slots := make([]*ValidationResult, len(files))

	e.logger.Debug("Starting batch", "run_id", runID, "files", len(files),
		"concurrency", e.concurrency, "registry", shortSum(reg.Checksum()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		i, f := i, f // per-iteration copies; go directive predates Go 1.22 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.validate(gctx, reg, f)
			// A file cut off by cancellation is discarded, not reported
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	results := make([]*ValidationResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}

	batch := &BatchResult{
		RunID:   runID,
		Results: results,
		Summary: summarize(results),
	}

	if err != nil {
		e.logger.Warn("Batch cancelled", "run_id", runID,
			"completed", len(results), "total", len(files), "error", err)
		return batch, err
	}

	e.logger.Info("Batch validated", "run_id", runID,
		"total", batch.Summary.Total,
		"passed", batch.Summary.Passed,
		"failed", batch.Summary.Failed,
		"warned", batch.Summary.Warned,
		"errors", batch.Summary.TotalErrors,
		"warnings", batch.Summary.TotalWarnings)
	return batch, nil
}

// ReadFiles loads files given relative to root.
func ReadFiles(root string, rels []string) ([]File, error) {
	files := make([]File, 0, len(rels))
	for _, rel := range rels {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Content: content})
	}
	return files, nil
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
