package ports

import (
	"context"

	"model-repository-service/internal/core/domain"
)

// VersionCatalog keeps an audit trail of repository mutations.
type VersionCatalog interface {
	Record(ctx context.Context, event *domain.VersionEvent) error
	History(ctx context.Context, endpoint string) ([]*domain.VersionEvent, error)
}
