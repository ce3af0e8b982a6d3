package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

// meanModel predicts the training mean for every object. It is the baseline
// other methods are judged against.
type meanModel struct {
	y     []float64
	mean  float64
	built bool
}

func newMean(domain.Parameters) ports.Estimator {
	return &meanModel{}
}

func (m *meanModel) Build(_ context.Context, x domain.Matrix, y []float64) (domain.Stats, error) {
	if err := checkTraining(x, y); err != nil {
		return nil, err
	}
	m.y = append([]float64(nil), y...)
	mean, sdec := stat.PopMeanStdDev(y, nil)
	m.mean = mean
	m.built = true

	return domain.Stats{
		{Name: "nobj", Unit: "objects", Value: len(y)},
		{Name: "mean", Unit: "activity", Value: m.mean},
		{Name: "SDEC", Unit: "activity", Value: sdec},
	}, nil
}

// Validate runs leave-one-out: each object is predicted by the mean of the
// others.
func (m *meanModel) Validate(ctx context.Context) (domain.Stats, error) {
	if !m.built {
		return nil, domain.ErrBackendNotBuilt
	}
	n := len(m.y)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 objects", domain.ErrValidationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := m.mean * float64(n)
	pred := make([]float64, n)
	for i, v := range m.y {
		pred[i] = (sum - v) / float64(n-1)
	}
	return predictionStats(m.y, pred), nil
}

func (m *meanModel) MarshalModel() (json.RawMessage, error) {
	if !m.built {
		return nil, domain.ErrBackendNotBuilt
	}
	return json.Marshal(struct {
		Mean float64 `json:"mean"`
		N    int     `json:"n"`
	}{m.mean, len(m.y)})
}

// predictionStats reports SDEP and Q2 for out-of-sample predictions.
func predictionStats(y, pred []float64) domain.Stats {
	mu := stat.Mean(y, nil)
	press, ss := 0.0, 0.0
	for i := range y {
		press += (y[i] - pred[i]) * (y[i] - pred[i])
		ss += (y[i] - mu) * (y[i] - mu)
	}
	q2 := math.NaN()
	if ss > 0 {
		q2 = 1 - press/ss
	}
	return domain.Stats{
		{Name: "nobj", Unit: "objects", Value: len(y)},
		{Name: "SDEP", Unit: "activity", Value: math.Sqrt(press / float64(len(y)))},
		{Name: "Q2", Unit: "", Value: q2},
	}
}
