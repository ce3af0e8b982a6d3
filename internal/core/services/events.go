package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// eventRecorder counts repository operations and records successful ones in
// the version catalog. The catalog is optional and its failures are only
// logged.
type eventRecorder struct {
	catalog ports.VersionCatalog
	metrics *observability.Metrics
}

func (r eventRecorder) done(ctx context.Context, op string, action domain.VersionAction, endpoint string, version int, msg string, err error) {
	r.metrics.ObserveOperation(op, err)

	fields := log.Fields{"operation": op, "endpoint": endpoint}
	if err != nil {
		log.WithFields(fields).WithError(err).Debug("repository operation failed")
		return
	}
	log.WithFields(fields).WithField("version", domain.VersionLabel(version)).Info(msg)

	if r.catalog == nil {
		return
	}
	event := &domain.VersionEvent{
		Endpoint:  endpoint,
		Version:   version,
		Action:    action,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.catalog.Record(ctx, event); err != nil {
		log.WithError(err).Warn("failed to record version event")
	}
}
