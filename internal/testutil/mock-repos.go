package testutil

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

// MockVersionCatalog is a mock of VersionCatalog.
type MockVersionCatalog struct {
	mock.Mock
}

func (m *MockVersionCatalog) Record(ctx context.Context, event *domain.VersionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockVersionCatalog) History(ctx context.Context, endpoint string) ([]*domain.VersionEvent, error) {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.VersionEvent), args.Error(1)
}

// MockEstimator is a mock of Estimator.
type MockEstimator struct {
	mock.Mock
}

func (m *MockEstimator) Build(ctx context.Context, x domain.Matrix, y []float64) (domain.Stats, error) {
	args := m.Called(ctx, x, y)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *MockEstimator) Validate(ctx context.Context) (domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *MockEstimator) MarshalModel() (json.RawMessage, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// MockBackendRegistry is a mock of BackendRegistry.
type MockBackendRegistry struct {
	mock.Mock
}

func (m *MockBackendRegistry) New(name string, params domain.Parameters) (ports.Estimator, error) {
	args := m.Called(name, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Estimator), args.Error(1)
}

func (m *MockBackendRegistry) Names() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}
