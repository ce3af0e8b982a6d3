package ports

import (
	"context"
	"encoding/json"

	"model-repository-service/internal/core/domain"
)

// Estimator is one modeling method. Validate is only meaningful after a
// successful Build.
type Estimator interface {
	Build(ctx context.Context, x domain.Matrix, y []float64) (domain.Stats, error)
	Validate(ctx context.Context) (domain.Stats, error)
	MarshalModel() (json.RawMessage, error)
}

type EstimatorFactory func(params domain.Parameters) Estimator

type BackendRegistry interface {
	New(name string, params domain.Parameters) (Estimator, error)
	Names() []string
}
