package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

var errSingular = errors.New("system is not positive definite")

// ridgeModel is L2-regularised linear regression on standardised features.
// Coefficients are reported in the original feature scale.
type ridgeModel struct {
	lambda float64
	folds  int

	x domain.Matrix
	y []float64

	fit   ridgeFit
	built bool
}

type ridgeFit struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (f ridgeFit) predict(row []float64) float64 {
	p := f.Intercept
	for j, w := range f.Coefficients {
		p += w * row[j]
	}
	return p
}

func newRidge(params domain.Parameters) ports.Estimator {
	lambda := params.RidgeLambda
	if lambda < 0 {
		lambda = 0
	}
	folds := params.ValidationFolds
	if folds < 2 {
		folds = 5
	}
	return &ridgeModel{lambda: lambda, folds: folds}
}

func (m *ridgeModel) Build(ctx context.Context, x domain.Matrix, y []float64) (domain.Stats, error) {
	if err := checkTraining(x, y); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fit, err := fitRidge(x.Rows, y, m.lambda)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBuildFailed, err)
	}
	m.x, m.y, m.fit, m.built = x, append([]float64(nil), y...), fit, true

	pred := make([]float64, len(y))
	for i, row := range x.Rows {
		pred[i] = fit.predict(row)
	}
	mu := stat.Mean(y, nil)
	rss, ss := 0.0, 0.0
	for i := range y {
		rss += (y[i] - pred[i]) * (y[i] - pred[i])
		ss += (y[i] - mu) * (y[i] - mu)
	}
	r2 := math.NaN()
	if ss > 0 {
		r2 = 1 - rss/ss
	}

	return domain.Stats{
		{Name: "nobj", Unit: "objects", Value: len(y)},
		{Name: "nvarx", Unit: "features", Value: x.NumCols()},
		{Name: "lambda", Unit: "", Value: m.lambda},
		{Name: "R2", Unit: "", Value: r2},
		{Name: "SDEC", Unit: "activity", Value: math.Sqrt(rss / float64(len(y)))},
	}, nil
}

// Validate runs k-fold cross-validation. Object i belongs to fold i mod k.
func (m *ridgeModel) Validate(ctx context.Context) (domain.Stats, error) {
	if !m.built {
		return nil, domain.ErrBackendNotBuilt
	}
	n := len(m.y)
	k := min(m.folds, n)
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 objects", domain.ErrValidationFailed)
	}

	pred := make([]float64, n)
	for fold := 0; fold < k; fold++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var trainX [][]float64
		var trainY []float64
		for i := 0; i < n; i++ {
			if i%k != fold {
				trainX = append(trainX, m.x.Rows[i])
				trainY = append(trainY, m.y[i])
			}
		}
		fit, err := fitRidge(trainX, trainY, m.lambda)
		if err != nil {
			return nil, fmt.Errorf("%w: fold %d: %v", domain.ErrValidationFailed, fold, err)
		}
		for i := fold; i < n; i += k {
			pred[i] = fit.predict(m.x.Rows[i])
		}
	}

	stats := predictionStats(m.y, pred)
	return append(stats, domain.InfoItem{Name: "folds", Unit: "", Value: k}), nil
}

func (m *ridgeModel) MarshalModel() (json.RawMessage, error) {
	if !m.built {
		return nil, domain.ErrBackendNotBuilt
	}
	return json.Marshal(struct {
		Lambda float64 `json:"lambda"`
		ridgeFit
	}{m.lambda, m.fit})
}

// fitRidge standardises columns, solves (ZᵀZ + λI)w = Zᵀ(y - ȳ) by Cholesky
// factorisation and maps the solution back to raw feature units. Constant
// columns get a zero weight.
func fitRidge(rows [][]float64, y []float64, lambda float64) (ridgeFit, error) {
	n := len(rows)
	p := 0
	if n > 0 {
		p = len(rows[0])
	}
	ybar := stat.Mean(y, nil)
	fit := ridgeFit{Intercept: ybar, Coefficients: make([]float64, p)}

	mu := make([]float64, p)
	sd := make([]float64, p)
	var active []int
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mu[j], sd[j] = stat.PopMeanStdDev(col, nil)
		if sd[j] > 0 {
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		return fit, nil
	}

	z := mat.NewDense(n, len(active), nil)
	yc := mat.NewVecDense(n, nil)
	for i := range rows {
		for r, j := range active {
			z.Set(i, r, (rows[i][j]-mu[j])/sd[j])
		}
		yc.SetVec(i, y[i]-ybar)
	}

	var a mat.SymDense
	a.SymOuterK(1, z.T())
	for r := range active {
		a.SetSym(r, r, a.At(r, r)+lambda)
	}
	var b mat.VecDense
	b.MulVec(z.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(&a); !ok {
		return ridgeFit{}, errSingular
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &b); err != nil {
		return ridgeFit{}, fmt.Errorf("%w: %v", errSingular, err)
	}

	for r, j := range active {
		coef := w.AtVec(r) / sd[j]
		fit.Coefficients[j] = coef
		fit.Intercept -= coef * mu[j]
	}
	return fit, nil
}
