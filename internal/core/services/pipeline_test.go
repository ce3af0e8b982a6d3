package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-repository-service/internal/adapters/secondary/sdfile"
	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/testutil"
)

func counts(chunks []domain.Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.Count
	}
	return out
}

func TestSplitPlan(t *testing.T) {
	tests := []struct {
		name    string
		records int
		workers int
		want    []int
	}{
		{"ten over three", 10, 3, []int{4, 4, 2}},
		{"even split", 8, 4, []int{2, 2, 2, 2}},
		{"single worker", 7, 1, []int{7}},
		{"zero workers", 7, 0, []int{7}},
		{"more workers than records", 3, 8, []int{1, 1, 1}},
		{"no empty tail", 5, 4, []int{2, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := SplitPlan(tt.records, tt.workers)
			require.NoError(t, err)
			assert.Equal(t, tt.want, counts(chunks))

			offset := 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, offset, c.Offset)
				offset += c.Count
			}
			assert.Equal(t, tt.records, offset)
		})
	}
}

func TestSplitPlan_Empty(t *testing.T) {
	_, err := SplitPlan(0, 4)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestConsolidate(t *testing.T) {
	chunks := []domain.Chunk{{Index: 0, Count: 2}, {Index: 1, Count: 1}}

	m, err := Consolidate(chunks, []domain.ChunkResult{
		{Index: 0, Success: true, Matrix: domain.NewMatrix([][]float64{{1, 2}, {3, 4}})},
		{Index: 1, Success: true, Matrix: domain.NewMatrix([][]float64{{5, 6}})},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, m.Rows)
}

func TestConsolidate_ReportsEveryFailedChunk(t *testing.T) {
	chunks := []domain.Chunk{{Index: 0, Count: 1}, {Index: 1, Count: 1}, {Index: 2, Count: 1}}

	_, err := Consolidate(chunks, []domain.ChunkResult{
		{Index: 0, Err: "bad record"},
		{Index: 1, Success: true, Matrix: domain.NewMatrix([][]float64{{1}})},
		{Index: 2, Err: "timeout"},
	})
	assert.ErrorIs(t, err, domain.ErrChunkFailed)
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Contains(t, err.Error(), "chunk 0: bad record")
	assert.Contains(t, err.Error(), "chunk 2: timeout")
}

func TestConsolidate_Mismatches(t *testing.T) {
	chunks := []domain.Chunk{{Index: 0, Count: 1}, {Index: 1, Count: 1}}

	_, err := Consolidate(chunks, []domain.ChunkResult{
		{Index: 0, Success: true, Matrix: domain.NewMatrix([][]float64{{1, 2}})},
		{Index: 1, Success: true, Matrix: domain.NewMatrix([][]float64{{1}})},
	})
	assert.ErrorIs(t, err, domain.ErrColumnMismatch)

	_, err = Consolidate(chunks, []domain.ChunkResult{
		{Index: 0, Success: true, Matrix: domain.NewMatrix([][]float64{{1}, {2}})},
		{Index: 1, Success: true, Matrix: domain.NewMatrix([][]float64{{1}})},
	})
	assert.ErrorIs(t, err, domain.ErrRowCountMismatch)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func newTestPipeline(t *testing.T, wf ports.Workflow) *FeaturePipeline {
	t.Helper()
	if wf == nil {
		wf = sdfile.NewWorkflow()
	}
	return NewFeaturePipeline(sdfile.NewReader(), wf, t.TempDir(), nil)
}

func TestFeaturePipeline_ChunkingPreservesRowOrder(t *testing.T) {
	ctx := context.Background()
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(10))
	params := domain.DefaultParameters()
	params.DescriptorFields = []string{"logp"}

	single, err := newTestPipeline(t, nil).Run(ctx, dataset, params, 1)
	require.NoError(t, err)
	assert.Len(t, single.Chunks, 1)
	assert.Equal(t, dataset, single.Chunks[0].Path)

	for _, workers := range []int{2, 3, 4, 10, 16} {
		multi, err := newTestPipeline(t, nil).Run(ctx, dataset, params, workers)
		require.NoError(t, err, workers)
		assert.Equal(t, single.Matrix, multi.Matrix, workers)
		assert.Equal(t, 10, multi.Records)
	}

	multi, err := newTestPipeline(t, nil).Run(ctx, dataset, params, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 2}, counts(multi.Chunks))
}

// lastChunkWorkflow holds back the first chunk until every other chunk has
// computed its features, and records the order in which chunks finish.
type lastChunkWorkflow struct {
	ports.Workflow
	others *sync.WaitGroup

	mu       sync.Mutex
	finished []string
}

func (w *lastChunkWorkflow) ComputeFeatures(ctx context.Context, path string, params domain.Parameters) (domain.Matrix, error) {
	base := filepath.Base(path)
	first := strings.HasPrefix(base, "chunk_0")
	if first {
		w.others.Wait()
	}
	m, err := w.Workflow.ComputeFeatures(ctx, path, params)

	w.mu.Lock()
	w.finished = append(w.finished, base)
	w.mu.Unlock()
	if !first {
		w.others.Done()
	}
	return m, err
}

func TestFeaturePipeline_RowOrderIndependentOfCompletionOrder(t *testing.T) {
	ctx := context.Background()
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(10))
	params := domain.DefaultParameters()
	params.DescriptorFields = []string{"logp"}

	single, err := newTestPipeline(t, nil).Run(ctx, dataset, params, 1)
	require.NoError(t, err)

	for _, workers := range []int{3, 4} {
		wf := &lastChunkWorkflow{Workflow: sdfile.NewWorkflow(), others: &sync.WaitGroup{}}
		wf.others.Add(workers - 1)

		multi, err := newTestPipeline(t, wf).Run(ctx, dataset, params, workers)
		require.NoError(t, err, workers)
		require.Len(t, wf.finished, workers)
		assert.True(t, strings.HasPrefix(wf.finished[workers-1], "chunk_0"), wf.finished)
		assert.Equal(t, single.Matrix, multi.Matrix, workers)
	}
}

func TestFeaturePipeline_RemovesRunDirectory(t *testing.T) {
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(6))
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background(), dataset, domain.DefaultParameters(), 3)
	require.NoError(t, err)

	entries, err := os.ReadDir(p.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFeaturePipeline_EmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sdf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := newTestPipeline(t, nil).Run(context.Background(), path, domain.DefaultParameters(), 4)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
}

// failingWorkflow fails feature computation for one chunk file.
type failingWorkflow struct {
	ports.Workflow
	chunk string
}

func (w failingWorkflow) ComputeFeatures(ctx context.Context, path string, params domain.Parameters) (domain.Matrix, error) {
	if strings.HasPrefix(filepath.Base(path), w.chunk) {
		return domain.Matrix{}, errors.New("descriptor engine crashed")
	}
	return w.Workflow.ComputeFeatures(ctx, path, params)
}

func TestFeaturePipeline_FailedChunkVoidsResult(t *testing.T) {
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(9))
	wf := failingWorkflow{Workflow: sdfile.NewWorkflow(), chunk: "chunk_1"}

	_, err := newTestPipeline(t, wf).Run(context.Background(), dataset, domain.DefaultParameters(), 3)
	assert.ErrorIs(t, err, domain.ErrChunkFailed)
	assert.Contains(t, err.Error(), "descriptor engine crashed")
}
