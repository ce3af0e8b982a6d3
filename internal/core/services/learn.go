package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// LearnService fits a backend on a feature matrix and stores the resulting
// model and statistics in the endpoint's dev version.
type LearnService struct {
	store    ports.EndpointStore
	registry ports.BackendRegistry
	metrics  *observability.Metrics
}

func NewLearnService(store ports.EndpointStore, registry ports.BackendRegistry, metrics *observability.Metrics) *LearnService {
	return &LearnService{store: store, registry: registry, metrics: metrics}
}

// Learn runs SELECT_BACKEND, BUILD, VALIDATE and PERSIST in order. Any
// failure moves the outcome to FAILED and nothing further is written. The
// outcome is returned in both cases.
func (s *LearnService) Learn(ctx context.Context, name string, params domain.Parameters, x domain.Matrix, y []float64) (*domain.LearnOutcome, error) {
	backend := strings.ToUpper(strings.TrimSpace(params.Model))
	outcome := domain.NewLearnOutcome(backend)
	logger := log.WithFields(log.Fields{"endpoint": name, "backend": backend})

	fail := func(err error) (*domain.LearnOutcome, error) {
		outcome.Fail(err)
		s.metrics.ObserveLearn(backend, outcome.State)
		logger.WithError(err).Warn("learn failed")
		return outcome, err
	}

	if x.NumRows() != len(y) {
		return fail(fmt.Errorf("%w: %d rows, %d targets", domain.ErrTargetMismatch, x.NumRows(), len(y)))
	}

	est, err := s.registry.New(backend, params)
	if err != nil {
		return fail(err)
	}

	outcome.MoveTo(domain.LearnStateBuild)
	build, err := est.Build(ctx, x, y)
	if err != nil {
		return fail(classify(domain.ErrBuildFailed, err))
	}
	outcome.Build = normalizeStats(build)

	outcome.MoveTo(domain.LearnStateValidate)
	validation, err := est.Validate(ctx)
	if err != nil {
		return fail(classify(domain.ErrValidationFailed, err))
	}
	outcome.Validation = normalizeStats(validation)

	outcome.MoveTo(domain.LearnStatePersist)
	if err := s.persist(ctx, name, backend, params, est, outcome); err != nil {
		return fail(err)
	}

	outcome.MoveTo(domain.LearnStateDone)
	s.metrics.ObserveLearn(backend, outcome.State)
	logger.WithField("model", outcome.ModelPath).Info("model built")
	return outcome, nil
}

// persist writes model.json and then info.json. Each file is replaced
// atomically but the pair is not.
func (s *LearnService) persist(ctx context.Context, name, backend string, params domain.Parameters, est ports.Estimator, outcome *domain.LearnOutcome) error {
	payload, err := est.MarshalModel()
	if err != nil {
		return classify(domain.ErrBuildFailed, err)
	}

	model, err := json.MarshalIndent(domain.ModelArtifact{
		SchemaVersion: domain.ArtifactSchemaVersion,
		Backend:       backend,
		CreatedAt:     time.Now().UTC(),
		Parameters:    params,
		Model:         payload,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode model: %v", domain.ErrBackend, err)
	}
	if outcome.ModelPath, err = s.store.WriteFile(ctx, name, domain.DevVersion, domain.ModelFileName, model); err != nil {
		return err
	}

	info, err := json.MarshalIndent(domain.ModelInfo{
		SchemaVersion: domain.ArtifactSchemaVersion,
		Backend:       backend,
		Build:         outcome.Build,
		Validation:    outcome.Validation,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode info: %v", domain.ErrBackend, err)
	}
	outcome.InfoPath, err = s.store.WriteFile(ctx, name, domain.DevVersion, domain.InfoFileName, info)
	return err
}

// classify keeps errors that already carry a kind and files the rest under
// sentinel.
func classify(sentinel, err error) error {
	for _, kind := range []error{
		domain.ErrUserInput, domain.ErrNotFound, domain.ErrConflict,
		domain.ErrIO, domain.ErrBackend, domain.ErrConsistency,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func normalizeStats(stats domain.Stats) domain.Stats {
	out := make(domain.Stats, len(stats))
	for i, it := range stats {
		out[i] = domain.InfoItem{Name: it.Name, Unit: it.Unit, Value: domain.NormalizeValue(it.Value)}
	}
	return out
}
