package services

import "model-repository-service/internal/core/domain"

// SplitPlan divides records into at most workers contiguous chunks of
// ceil(records/workers) records, the last chunk taking the remainder. No
// chunk is ever empty, so fewer than workers chunks come back when the
// division leaves nothing for the tail (5 records, 4 workers: 2,2,1).
func SplitPlan(records, workers int) ([]domain.Chunk, error) {
	if records <= 0 {
		return nil, domain.ErrEmptyDataset
	}
	if workers <= 1 {
		return []domain.Chunk{{Index: 0, Offset: 0, Count: records}}, nil
	}

	size := (records + workers - 1) / workers
	n := min(workers, (records+size-1)/size)

	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		offset := i * size
		chunks[i] = domain.Chunk{
			Index:  i,
			Offset: offset,
			Count:  min(size, records-offset),
		}
	}
	return chunks, nil
}
