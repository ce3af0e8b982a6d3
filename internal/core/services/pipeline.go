package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// PipelineResult is the consolidated feature matrix of one dataset.
type PipelineResult struct {
	Records int
	Chunks  []domain.Chunk
	Matrix  domain.Matrix
}

// FeaturePipeline splits a dataset into chunks, runs the workflow on every
// chunk in parallel and reassembles the rows in dataset order.
type FeaturePipeline struct {
	reader   ports.DatasetReader
	workflow ports.Workflow
	tempDir  string
	metrics  *observability.Metrics
}

func NewFeaturePipeline(reader ports.DatasetReader, workflow ports.Workflow, tempDir string, metrics *observability.Metrics) *FeaturePipeline {
	return &FeaturePipeline{reader: reader, workflow: workflow, tempDir: tempDir, metrics: metrics}
}

func (p *FeaturePipeline) Run(ctx context.Context, dataset string, params domain.Parameters, workers int) (*PipelineResult, error) {
	records, err := p.reader.Count(ctx, dataset)
	if err != nil {
		return nil, err
	}
	chunks, err := SplitPlan(records, workers)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(p.tempDir, "run-"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, domain.IOError("create run directory", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.WithError(err).WithField("path", runDir).Warn("failed to remove run directory")
		}
	}()

	if len(chunks) == 1 {
		chunks[0].Path = dataset
	} else if chunks, err = p.reader.WriteChunks(ctx, dataset, chunks, runDir); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"dataset": dataset, "records": records, "chunks": len(chunks)})
	logger.Debug("feature pipeline started")

	results := make([]domain.ChunkResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = p.runChunk(ctx, chunk, filepath.Join(runDir, fmt.Sprintf("work_%d", chunk.Index)), params)
			return nil
		})
	}
	_ = g.Wait()

	matrix, err := Consolidate(chunks, results)
	if err != nil {
		logger.WithError(err).Warn("feature pipeline failed")
		return nil, err
	}
	logger.WithField("features", matrix.NumCols()).Info("feature pipeline finished")
	return &PipelineResult{Records: records, Chunks: chunks, Matrix: matrix}, nil
}

func (p *FeaturePipeline) runChunk(ctx context.Context, chunk domain.Chunk, workDir string, params domain.Parameters) domain.ChunkResult {
	start := time.Now()
	matrix, err := p.process(ctx, chunk.Path, workDir, params)
	p.metrics.ObserveChunk(time.Since(start), err == nil)

	if err != nil {
		return domain.ChunkResult{Index: chunk.Index, Err: err.Error()}
	}
	return domain.ChunkResult{Index: chunk.Index, Success: true, Matrix: matrix}
}

func (p *FeaturePipeline) process(ctx context.Context, path, workDir string, params domain.Parameters) (domain.Matrix, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return domain.Matrix{}, err
	}
	path, err := p.workflow.Normalize(ctx, path, workDir, params)
	if err != nil {
		return domain.Matrix{}, fmt.Errorf("normalize: %w", err)
	}
	if path, err = p.workflow.Ionize(ctx, path, workDir, params); err != nil {
		return domain.Matrix{}, fmt.Errorf("ionize: %w", err)
	}
	if path, err = p.workflow.Convert3D(ctx, path, workDir, params); err != nil {
		return domain.Matrix{}, fmt.Errorf("convert3d: %w", err)
	}
	m, err := p.workflow.ComputeFeatures(ctx, path, params)
	if err != nil {
		return domain.Matrix{}, fmt.Errorf("features: %w", err)
	}
	return m, nil
}

// Consolidate concatenates chunk matrices in chunk order. Every chunk must
// have succeeded, returned one row per record and agree on the column count.
func Consolidate(chunks []domain.Chunk, results []domain.ChunkResult) (domain.Matrix, error) {
	var failures []error
	for _, r := range results {
		if !r.Success {
			failures = append(failures, fmt.Errorf("chunk %d: %s", r.Index, r.Err))
		}
	}
	if len(failures) > 0 {
		return domain.Matrix{}, fmt.Errorf("%w: %w", domain.ErrChunkFailed, errors.Join(failures...))
	}
	if len(results) != len(chunks) {
		return domain.Matrix{}, fmt.Errorf("%w: %d results for %d chunks", domain.ErrConsistency, len(results), len(chunks))
	}

	cols, total := -1, 0
	for i, r := range results {
		if r.Index != chunks[i].Index {
			return domain.Matrix{}, fmt.Errorf("%w: result %d carries chunk index %d", domain.ErrConsistency, i, r.Index)
		}
		if r.Matrix.NumRows() != chunks[i].Count {
			return domain.Matrix{}, fmt.Errorf("%w: chunk %d has %d rows for %d records",
				domain.ErrRowCountMismatch, r.Index, r.Matrix.NumRows(), chunks[i].Count)
		}
		if r.Matrix.NumRows() == 0 {
			continue
		}
		if !r.Matrix.IsRectangular() {
			return domain.Matrix{}, fmt.Errorf("%w: chunk %d is ragged", domain.ErrColumnMismatch, r.Index)
		}
		if cols >= 0 && r.Matrix.NumCols() != cols {
			return domain.Matrix{}, fmt.Errorf("%w: chunk %d has %d columns, expected %d",
				domain.ErrColumnMismatch, r.Index, r.Matrix.NumCols(), cols)
		}
		cols = r.Matrix.NumCols()
		total += r.Matrix.NumRows()
	}

	rows := make([][]float64, 0, total)
	for _, r := range results {
		rows = append(rows, r.Matrix.Rows...)
	}
	return domain.NewMatrix(rows), nil
}
