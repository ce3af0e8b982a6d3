// Package backends holds the modeling methods a learn run can select by
// name.
package backends

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const (
	Mean  = "MEAN"
	Ridge = "RIDGE"
)

// Registry maps method names to estimator factories. Names are matched
// case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ports.EstimatorFactory
}

// NewRegistry returns a registry holding the built-in methods.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]ports.EstimatorFactory)}
	r.Register(Mean, newMean)
	r.Register(Ridge, newRidge)
	return r
}

func (r *Registry) Register(name string, f ports.EstimatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToUpper(name)] = f
}

func (r *Registry) New(name string, params domain.Parameters) (ports.Estimator, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToUpper(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, name)
	}
	return f(params), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// checkTraining validates the shape shared by every method.
func checkTraining(x domain.Matrix, y []float64) error {
	if len(y) == 0 {
		return fmt.Errorf("%w: no training objects", domain.ErrBuildFailed)
	}
	if x.NumRows() != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", domain.ErrTargetMismatch, x.NumRows(), len(y))
	}
	if !x.IsRectangular() {
		return domain.ErrColumnMismatch
	}
	return nil
}
