package pipeline

import (
	"context"
	"fmt"

	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
)

// DefaultMaxBatchFiles caps the number of sources in one Batch call.
const DefaultMaxBatchFiles = 20

// FileResult is the outcome for one batch source.
type FileResult struct {
	Source string  `json:"source"`
	Output *Output `json:"output,omitempty"`
	Err    error   `json:"-"`
}

// BatchOptions configures Batch.
type BatchOptions struct {
	// MaxFiles defaults to DefaultMaxBatchFiles.
	MaxFiles int
	// OnFile is called after each source with its 1-based position.
	OnFile func(index, total int, res FileResult)
}

// Batch processes sources one after another with the settings in req.
// A failing source is recorded and the batch continues; a cancellation
// stops the batch and is returned with the results gathered so far.
func (p *Pipeline) Batch(ctx context.Context, sources []string, req Request, opts BatchOptions) ([]FileResult, error) {
	limit := opts.MaxFiles
	if limit <= 0 {
		limit = DefaultMaxBatchFiles
	}
	if len(sources) == 0 {
		return nil, errors.InvalidInput("files", "no files to process")
	}
	if len(sources) > limit {
		return nil, errors.InvalidInput("files", fmt.Sprintf("at most %d files per batch, got %d", limit, len(sources)))
	}

	results := make([]FileResult, 0, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, errors.Canceled("batch").WithCause(err)
		}

		fileReq := req
		fileReq.Source = src
		out, err := p.Process(ctx, fileReq)
		res := FileResult{Source: src, Output: out, Err: err}
		results = append(results, res)
		if opts.OnFile != nil {
			opts.OnFile(i+1, len(sources), res)
		}

		if errors.HasCode(err, errors.ErrCodeCanceled) {
			return results, err
		}
		if err != nil {
			p.log.Warn("batch file failed", logger.Fields(logger.FieldPath, src, logger.FieldError, err.Error()))
		}
	}
	return results, nil
}
