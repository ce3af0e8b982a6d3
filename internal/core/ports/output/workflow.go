package ports

import (
	"context"

	"model-repository-service/internal/core/domain"
)

// DatasetReader reads structured-record input files.
type DatasetReader interface {
	Count(ctx context.Context, path string) (int, error)
	Annotations(ctx context.Context, path string, params domain.Parameters) (*domain.Annotations, error)
	// WriteChunks copies each chunk's records into its own file below dir
	// and returns the chunks with Path set.
	WriteChunks(ctx context.Context, path string, chunks []domain.Chunk, dir string) ([]domain.Chunk, error)
}

// Workflow is the per-record processing applied to one chunk file. Every
// step reads path, writes any intermediate file below workDir and returns
// the path the next step reads.
type Workflow interface {
	Normalize(ctx context.Context, path, workDir string, params domain.Parameters) (string, error)
	Ionize(ctx context.Context, path, workDir string, params domain.Parameters) (string, error)
	Convert3D(ctx context.Context, path, workDir string, params domain.Parameters) (string, error)
	ComputeFeatures(ctx context.Context, path string, params domain.Parameters) (domain.Matrix, error)
}
