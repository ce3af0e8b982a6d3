package domain

// Chunk is a contiguous slice of a dataset. Index fixes its position when
// results are reassembled.
type Chunk struct {
	Index  int    `json:"index"`
	Offset int    `json:"offset"`
	Count  int    `json:"count"`
	Path   string `json:"path"`
}

// ChunkResult is what one worker reports for one chunk.
type ChunkResult struct {
	Index   int
	Success bool
	Matrix  Matrix
	Err     string
}

// Matrix is a dense row-major feature matrix.
type Matrix struct {
	Rows [][]float64 `json:"rows"`
}

func NewMatrix(rows [][]float64) Matrix {
	return Matrix{Rows: rows}
}

func (m Matrix) NumRows() int {
	return len(m.Rows)
}

// NumCols returns the width of the first row, or 0 for an empty matrix.
func (m Matrix) NumCols() int {
	if len(m.Rows) == 0 {
		return 0
	}
	return len(m.Rows[0])
}

// IsRectangular reports whether every row has the same width.
func (m Matrix) IsRectangular() bool {
	cols := m.NumCols()
	for _, r := range m.Rows {
		if len(r) != cols {
			return false
		}
	}
	return true
}

// Annotations are the per-record metadata extracted from a dataset before
// featurization: record names and activity values, in dataset order.
type Annotations struct {
	Names        []string   `json:"names"`
	Activities   []*float64 `json:"activities"`
	Experimental []string   `json:"experimental"`
}

// Targets returns the activity values, failing when any record lacks one.
func (a Annotations) Targets() ([]float64, error) {
	if len(a.Activities) == 0 {
		return nil, ErrMissingTargets
	}
	y := make([]float64, len(a.Activities))
	for i, v := range a.Activities {
		if v == nil {
			return nil, ErrMissingTargets
		}
		y[i] = *v
	}
	return y, nil
}
