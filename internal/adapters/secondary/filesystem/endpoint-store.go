package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const (
	devDir       = "dev"
	manifestFile = "manifest.json"
	locksDir     = ".locks"
)

type endpointStore struct {
	root  string
	locks *lockTable
}

// NewEndpointStore opens (and creates if needed) a repository rooted at root.
func NewEndpointStore(root string) (ports.EndpointStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.IOError("resolve repository root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, domain.IOError("create repository root", err)
	}
	return &endpointStore{root: abs, locks: newLockTable(filepath.Join(abs, locksDir))}, nil
}

func (s *endpointStore) Root() string {
	return s.root
}

func (s *endpointStore) EndpointPath(name string) string {
	return filepath.Join(s.root, name)
}

func (s *endpointStore) VersionPath(name string, id int) string {
	return filepath.Join(s.root, name, domain.VersionLabel(id))
}

func (s *endpointStore) EndpointExists(_ context.Context, name string) (bool, error) {
	return isDir(s.EndpointPath(name))
}

func (s *endpointStore) DevExists(_ context.Context, name string) (bool, error) {
	return isDir(s.VersionPath(name, domain.DevVersion))
}

func (s *endpointStore) VersionExists(_ context.Context, name string, id int) (bool, error) {
	return isDir(s.VersionPath(name, id))
}

func (s *endpointStore) CreateDev(_ context.Context, name string, templates map[string][]byte) error {
	dev := s.VersionPath(name, domain.DevVersion)
	if err := os.MkdirAll(dev, 0o755); err != nil {
		return domain.IOError("create dev directory", err)
	}
	log.WithField("path", dev).Debug("dev directory created")

	for file, content := range templates {
		if _, err := writeAtomic(filepath.Join(dev, file), content); err != nil {
			return domain.IOError("seed template "+file, err)
		}
	}
	return nil
}

func (s *endpointStore) CreateEndpointDir(_ context.Context, name string) error {
	if err := os.Mkdir(s.EndpointPath(name), 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.ErrEndpointExists
		}
		return domain.IOError("create endpoint directory", err)
	}
	return nil
}

// RemoveEndpoint deletes the whole tree. Paths that vanished concurrently are
// not an error.
func (s *endpointStore) RemoveEndpoint(_ context.Context, name string) error {
	if err := os.RemoveAll(s.EndpointPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.IOError("remove endpoint", err)
	}
	return nil
}

func (s *endpointStore) ListEndpoints(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, domain.IOError("read repository root", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		ok, err := isDir(filepath.Join(s.root, e.Name(), devDir))
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *endpointStore) ListVersions(_ context.Context, name string) ([]int, error) {
	entries, err := os.ReadDir(s.EndpointPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, domain.IOError("read endpoint directory", err)
	}

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := domain.ParseVersionLabel(e.Name())
		if !ok || id == domain.DevVersion {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// CloneDev copies dev into a new version directory. The target must not
// exist; a partial copy is removed on failure.
func (s *endpointStore) CloneDev(ctx context.Context, name string, id int) error {
	src := s.VersionPath(name, domain.DevVersion)
	dst := s.VersionPath(name, id)

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrEndpointNotFound
		}
		return domain.IOError("stat dev directory", err)
	}
	if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.ErrVersionExists
		}
		return domain.IOError("create version directory", err)
	}

	if err := copyTree(ctx, src, dst); err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			log.WithError(rmErr).WithField("path", dst).Warn("cleanup of partial version failed")
		}
		return domain.IOError("clone dev", err)
	}
	return nil
}

func (s *endpointStore) RemoveVersion(_ context.Context, name string, id int) error {
	if err := os.RemoveAll(s.VersionPath(name, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.IOError("remove version", err)
	}
	return nil
}

func (s *endpointStore) ReadFile(_ context.Context, name string, id int, file string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.VersionPath(name, id), file))
	if err != nil {
		return nil, domain.IOError("read "+file, err)
	}
	return data, nil
}

func (s *endpointStore) WriteFile(_ context.Context, name string, id int, file string, data []byte) (string, error) {
	path, err := writeAtomic(filepath.Join(s.VersionPath(name, id), file), data)
	if err != nil {
		return "", domain.IOError("write "+file, err)
	}
	return path, nil
}

func (s *endpointStore) LoadManifest(_ context.Context, name string) (*domain.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.EndpointPath(name), manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest of %s", domain.ErrNotFound, name)
		}
		return nil, domain.IOError("read manifest", err)
	}

	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest of %s: %v", domain.ErrConsistency, name, err)
	}
	if m.SchemaVersion != domain.ManifestSchemaVersion {
		return nil, fmt.Errorf("%w: manifest schema %d", domain.ErrIncompatibleSchema, m.SchemaVersion)
	}
	return &m, nil
}

func (s *endpointStore) SaveManifest(_ context.Context, m *domain.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := writeAtomic(filepath.Join(s.EndpointPath(m.Endpoint), manifestFile), data); err != nil {
		return domain.IOError("write manifest", err)
	}
	return nil
}

func (s *endpointStore) Lock(ctx context.Context, name string) (func(), error) {
	return s.locks.acquire(ctx, name)
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, domain.IOError("stat", err)
	}
	return info.IsDir(), nil
}

// writeAtomic writes into a temp file next to path and renames it over path.
func writeAtomic(path string, data []byte) (string, error) {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.Mkdir(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
