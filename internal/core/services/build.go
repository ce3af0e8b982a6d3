package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// BuildOverrides replace values of dev/parameters.yaml for one run. Zero
// values keep the file's settings.
type BuildOverrides struct {
	Algorithm string
	Workers   int
}

// BuildService turns a training dataset into a model in an endpoint's dev
// version: parameters, annotations, feature pipeline, learn.
type BuildService struct {
	store          ports.EndpointStore
	reader         ports.DatasetReader
	pipeline       *FeaturePipeline
	learn          *LearnService
	defaultWorkers int
	events         eventRecorder
}

func NewBuildService(store ports.EndpointStore, reader ports.DatasetReader, pipeline *FeaturePipeline, learn *LearnService, defaultWorkers int, catalog ports.VersionCatalog, metrics *observability.Metrics) *BuildService {
	return &BuildService{
		store:          store,
		reader:         reader,
		pipeline:       pipeline,
		learn:          learn,
		defaultWorkers: defaultWorkers,
		events:         eventRecorder{catalog: catalog, metrics: metrics},
	}
}

func (s *BuildService) Run(ctx context.Context, name, dataset string, overrides BuildOverrides) (report *domain.BuildReport, err error) {
	defer func() {
		s.events.done(ctx, "build", domain.VersionActionBuild, name, domain.DevVersion, "model built", err)
	}()

	if err := domain.ValidateEndpointName(name); err != nil {
		return nil, err
	}
	exists, err := s.store.DevExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
	}

	params, err := LoadParameters(ctx, s.store, name)
	if err != nil {
		return nil, err
	}
	if overrides.Algorithm != "" {
		params.Model = overrides.Algorithm
	}
	if overrides.Workers > 0 {
		params.Workers = overrides.Workers
	}
	workers := params.Workers
	if workers <= 0 {
		workers = s.defaultWorkers
	}

	ann, err := s.reader.Annotations(ctx, dataset, params)
	if err != nil {
		return nil, err
	}
	y, err := ann.Targets()
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.Run(ctx, dataset, params, workers)
	if err != nil {
		return nil, err
	}
	report = &domain.BuildReport{
		Endpoint: name,
		Records:  result.Records,
		Features: result.Matrix.NumCols(),
		Chunks:   len(result.Chunks),
	}

	// dev must not change under a concurrent publish
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return report, err
	}
	defer unlock()

	report.Outcome, err = s.learn.Learn(ctx, name, params, result.Matrix, y)
	if err != nil {
		return report, err
	}

	log.WithFields(log.Fields{"endpoint": name, "records": report.Records, "chunks": report.Chunks}).Debug("build finished")
	return report, nil
}
