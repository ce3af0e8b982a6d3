package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// EndpointService manages endpoints and their versions. Every mutation runs
// under the endpoint's exclusive lock.
type EndpointService struct {
	store  ports.EndpointStore
	events eventRecorder
}

// NewEndpointService builds the service. catalog and metrics may be nil.
func NewEndpointService(store ports.EndpointStore, catalog ports.VersionCatalog, metrics *observability.Metrics) *EndpointService {
	return &EndpointService{store: store, events: eventRecorder{catalog: catalog, metrics: metrics}}
}

func (s *EndpointService) Create(ctx context.Context, name string) (err error) {
	defer func() {
		s.events.done(ctx, "create", domain.VersionActionCreateEndpoint, name, domain.DevVersion, "endpoint created", err)
	}()

	if err := domain.ValidateEndpointName(name); err != nil {
		return err
	}
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := s.store.DevExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrEndpointExists, name)
	}

	templates, err := DefaultTemplates()
	if err != nil {
		return err
	}
	if err := s.store.CreateDev(ctx, name, templates); err != nil {
		return err
	}

	// numbered versions left over from an earlier tree keep their ids
	ids, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return err
	}
	return s.store.SaveManifest(ctx, domain.ManifestFromVersions(name, ids))
}

func (s *EndpointService) Delete(ctx context.Context, name string) (err error) {
	defer func() {
		s.events.done(ctx, "delete", domain.VersionActionDeleteEndpoint, name, domain.DevVersion, "endpoint removed", err)
	}()

	if err := domain.ValidateEndpointName(name); err != nil {
		return err
	}
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := s.store.EndpointExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
	}
	return s.store.RemoveEndpoint(ctx, name)
}

// Publish snapshots dev into the next numbered version and returns its id.
func (s *EndpointService) Publish(ctx context.Context, name string) (id int, err error) {
	defer func() {
		s.events.done(ctx, "publish", domain.VersionActionPublish, name, id, "version published", err)
	}()

	if err := s.requireDev(ctx, name); err != nil {
		return 0, err
	}
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return 0, err
	}
	defer unlock()

	m, err := s.manifest(ctx, name)
	if err != nil {
		return 0, err
	}

	next := m.NextID()
	if err := s.store.CloneDev(ctx, name, next); err != nil {
		return 0, err
	}
	m.Add(next)
	if err := s.store.SaveManifest(ctx, m); err != nil {
		if rmErr := s.store.RemoveVersion(ctx, name, next); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		return 0, err
	}
	return next, nil
}

// DeleteVersion removes a numbered version. Its id is never reassigned.
func (s *EndpointService) DeleteVersion(ctx context.Context, name string, id int) (err error) {
	defer func() {
		s.events.done(ctx, "delete_version", domain.VersionActionDeleteVersion, name, id, "version removed", err)
	}()

	if id == domain.DevVersion {
		return domain.ErrDevVersionImmutable
	}
	if id < 0 {
		return domain.ErrInvalidVersion
	}
	if err := domain.ValidateEndpointName(name); err != nil {
		return err
	}
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := s.store.EndpointExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
	}
	exists, err = s.store.VersionExists(ctx, name, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", domain.ErrVersionNotFound, name, domain.VersionLabel(id))
	}

	m, err := s.manifest(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.RemoveVersion(ctx, name, id); err != nil {
		return err
	}
	m.Remove(id)
	return s.store.SaveManifest(ctx, m)
}

// ListEndpoints returns every endpoint with its versions, sorted by name.
func (s *EndpointService) ListEndpoints(ctx context.Context) ([]domain.EndpointTree, error) {
	names, err := s.store.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	trees := make([]domain.EndpointTree, 0, len(names))
	for _, name := range names {
		tree, err := s.tree(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrEndpointNotFound) {
				// removed while listing
				continue
			}
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func (s *EndpointService) ListVersions(ctx context.Context, name string) (domain.EndpointTree, error) {
	if err := s.requireDev(ctx, name); err != nil {
		return domain.EndpointTree{}, err
	}
	return s.tree(ctx, name)
}

// Info loads the build and validation statistics of one version.
func (s *EndpointService) Info(ctx context.Context, name string, id int) (*domain.ModelInfo, error) {
	data, err := s.readArtifact(ctx, name, id, domain.InfoFileName, domain.ErrInfoNotFound)
	if err != nil {
		return nil, err
	}

	var info domain.ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrConsistency, domain.InfoFileName, err)
	}
	if err := info.CheckSchema(); err != nil {
		return nil, err
	}
	return &info, nil
}

// Model loads the model artifact of one version. Artifacts written under
// another schema version are rejected.
func (s *EndpointService) Model(ctx context.Context, name string, id int) (*domain.ModelArtifact, error) {
	data, err := s.readArtifact(ctx, name, id, domain.ModelFileName, domain.ErrModelNotFound)
	if err != nil {
		return nil, err
	}

	var artifact domain.ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrConsistency, domain.ModelFileName, err)
	}
	if err := artifact.CheckSchema(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (s *EndpointService) readArtifact(ctx context.Context, name string, id int, file string, missing error) ([]byte, error) {
	if id < 0 {
		return nil, domain.ErrInvalidVersion
	}
	if err := s.requireDev(ctx, name); err != nil {
		return nil, err
	}
	exists, err := s.store.VersionExists(ctx, name, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrVersionNotFound, name, domain.VersionLabel(id))
	}

	data, err := s.store.ReadFile(ctx, name, id, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", missing, name, domain.VersionLabel(id))
		}
		return nil, err
	}
	return data, nil
}

// History returns the catalog events of an endpoint, oldest first. Without a
// catalog the history is empty.
func (s *EndpointService) History(ctx context.Context, name string) ([]*domain.VersionEvent, error) {
	if err := domain.ValidateEndpointName(name); err != nil {
		return nil, err
	}
	if s.events.catalog == nil {
		return []*domain.VersionEvent{}, nil
	}
	return s.events.catalog.History(ctx, name)
}

func (s *EndpointService) requireDev(ctx context.Context, name string) error {
	if err := domain.ValidateEndpointName(name); err != nil {
		return err
	}
	exists, err := s.store.DevExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
	}
	return nil
}

// manifest loads the endpoint manifest, rebuilding it from a directory scan
// for legacy trees, and folds in versions found on disk. Callers hold the
// endpoint lock.
func (s *EndpointService) manifest(ctx context.Context, name string) (*domain.Manifest, error) {
	ids, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	m, err := s.store.LoadManifest(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return domain.ManifestFromVersions(name, ids), nil
	}
	m.Reconcile(ids)
	return m, nil
}

func (s *EndpointService) tree(ctx context.Context, name string) (domain.EndpointTree, error) {
	ids, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return domain.EndpointTree{}, err
	}
	versions := make([]domain.Version, 0, len(ids)+1)
	versions = append(versions, domain.NewVersion(domain.DevVersion))
	for _, id := range ids {
		versions = append(versions, domain.NewVersion(id))
	}
	return domain.EndpointTree{Endpoint: name, Versions: versions}, nil
}
