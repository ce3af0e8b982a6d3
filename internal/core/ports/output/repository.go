package ports

import (
	"context"

	"model-repository-service/internal/core/domain"
)

// EndpointStore is the filesystem tree of endpoints. Version ids are passed
// as integers; 0 is the dev version.
type EndpointStore interface {
	Root() string
	EndpointPath(name string) string
	VersionPath(name string, id int) string

	// EndpointExists reports whether the endpoint directory exists at all.
	EndpointExists(ctx context.Context, name string) (bool, error)
	// DevExists reports whether the endpoint has a dev directory.
	DevExists(ctx context.Context, name string) (bool, error)
	VersionExists(ctx context.Context, name string, id int) (bool, error)

	CreateDev(ctx context.Context, name string, templates map[string][]byte) error
	CreateEndpointDir(ctx context.Context, name string) error
	RemoveEndpoint(ctx context.Context, name string) error

	ListEndpoints(ctx context.Context) ([]string, error)
	// ListVersions returns the numbered version ids found on disk, sorted.
	ListVersions(ctx context.Context, name string) ([]int, error)

	CloneDev(ctx context.Context, name string, id int) error
	RemoveVersion(ctx context.Context, name string, id int) error

	ReadFile(ctx context.Context, name string, id int, file string) ([]byte, error)
	// WriteFile replaces file atomically and returns its path.
	WriteFile(ctx context.Context, name string, id int, file string, data []byte) (string, error)

	// LoadManifest returns domain.ErrNotFound when the endpoint has none.
	LoadManifest(ctx context.Context, name string) (*domain.Manifest, error)
	SaveManifest(ctx context.Context, m *domain.Manifest) error

	// Lock takes the endpoint's exclusive lock. The returned func releases it.
	Lock(ctx context.Context, name string) (func(), error)
}
