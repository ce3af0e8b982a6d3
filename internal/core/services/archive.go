package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/observability"
)

// ArchiveService moves whole endpoints in and out of the repository as
// single archive files.
type ArchiveService struct {
	store     ports.EndpointStore
	codec     ports.ArchiveCodec
	exportDir string
	events    eventRecorder
}

func NewArchiveService(store ports.EndpointStore, codec ports.ArchiveCodec, exportDir string, catalog ports.VersionCatalog, metrics *observability.Metrics) *ArchiveService {
	return &ArchiveService{
		store:     store,
		codec:     codec,
		exportDir: exportDir,
		events:    eventRecorder{catalog: catalog, metrics: metrics},
	}
}

// Export packs dev and every numbered version of name into
// <exportDir>/<name><ext> and returns the archive path.
func (s *ArchiveService) Export(ctx context.Context, name string) (path string, err error) {
	defer func() {
		s.events.done(ctx, "export", domain.VersionActionExport, name, domain.DevVersion, "endpoint exported", err)
	}()

	if err := domain.ValidateEndpointName(name); err != nil {
		return "", err
	}
	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return "", err
	}
	defer unlock()

	exists, err := s.store.DevExists(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
	}
	ids, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	entries := make([]string, 0, len(ids)+1)
	entries = append(entries, domain.VersionLabel(domain.DevVersion))
	for _, id := range ids {
		entries = append(entries, domain.VersionLabel(id))
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", domain.IOError("create export directory", err)
	}
	path = filepath.Join(s.exportDir, name+s.codec.Extension())

	tmp, err := os.CreateTemp(s.exportDir, "."+name+".export-*")
	if err != nil {
		return "", domain.IOError("create archive", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.codec.Pack(ctx, s.store.EndpointPath(name), entries, tmp); err != nil {
		tmp.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", domain.IOError("pack endpoint", err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.IOError("close archive", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", domain.IOError("move archive", err)
	}

	log.WithFields(log.Fields{"endpoint": name, "versions": len(ids), "path": path}).Debug("archive written")
	return path, nil
}

// Import unpacks an archive into a new endpoint named after the archive
// file. An existing endpoint is left untouched; a failed import leaves no
// endpoint behind.
func (s *ArchiveService) Import(ctx context.Context, path string) (name string, err error) {
	ext := s.codec.Extension()
	if !strings.HasSuffix(path, ext) {
		path += ext
	}
	name = strings.TrimSuffix(filepath.Base(path), ext)
	defer func() {
		s.events.done(ctx, "import", domain.VersionActionImport, name, domain.DevVersion, "endpoint imported", err)
	}()

	if err := domain.ValidateEndpointName(name); err != nil {
		return name, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return name, fmt.Errorf("%w: %s", domain.ErrArchiveNotFound, path)
		}
		return name, domain.IOError("open archive", err)
	}
	defer f.Close()

	unlock, err := s.store.Lock(ctx, name)
	if err != nil {
		return name, err
	}
	defer unlock()

	if err := s.store.CreateEndpointDir(ctx, name); err != nil {
		if errors.Is(err, domain.ErrEndpointExists) {
			return name, fmt.Errorf("%w: %s", domain.ErrEndpointExists, name)
		}
		return name, err
	}

	if err := s.extract(ctx, f, name); err != nil {
		if rmErr := s.store.RemoveEndpoint(ctx, name); rmErr != nil {
			log.WithError(rmErr).WithField("endpoint", name).Warn("failed to remove partially imported endpoint")
		}
		return name, err
	}
	return name, nil
}

func (s *ArchiveService) extract(ctx context.Context, f *os.File, name string) error {
	if err := s.codec.Unpack(ctx, f, s.store.EndpointPath(name)); err != nil {
		if errors.Is(err, domain.ErrIO) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.IOError("unpack archive", err)
	}

	exists, err := s.store.DevExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: archive of %s has no dev version", domain.ErrConsistency, name)
	}

	ids, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return err
	}
	return s.store.SaveManifest(ctx, domain.ManifestFromVersions(name, ids))
}
