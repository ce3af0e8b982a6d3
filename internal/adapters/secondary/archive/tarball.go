package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const extension = ".tgz"

type tarball struct{}

// NewTarball returns the gzip-compressed tar codec used for endpoint
// archives.
func NewTarball() ports.ArchiveCodec {
	return tarball{}
}

func (tarball) Extension() string {
	return extension
}

// Pack writes each entry below root, in the given order, as one tar.gz
// stream. Directories are written as headers so empty ones survive.
func (tarball) Pack(ctx context.Context, root string, entries []string, dest io.Writer) error {
	gz := gzip.NewWriter(dest)
	tw := tar.NewWriter(gz)
	counter := &countingWriter{dest: tw}

	for _, entry := range entries {
		if err := packEntry(ctx, tw, counter, root, entry); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	log.WithFields(log.Fields{"root": root, "entries": len(entries), "bytes": counter.n}).Debug("archive packed")
	return nil
}

func packEntry(ctx context.Context, tw *tar.Writer, body io.Writer, root, entry string) error {
	return filepath.WalkDir(filepath.Join(root, entry), func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		linkname := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if linkname, err = os.Readlink(full); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkname)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		// ownership is not part of the archive contract
		hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		fp, err := os.Open(full)
		if err != nil {
			return err
		}
		defer fp.Close()
		_, err = io.Copy(body, fp)
		return err
	})
}

// maxLinkHops bounds symlink resolution during extraction.
const maxLinkHops = 40

type link struct {
	name   string
	target string
}

// Unpack extracts a tar.gz stream below dest. Entries whose names or link
// targets resolve outside dest, on paper or through links already on disk,
// are rejected with domain.ErrUnsafeArchive. Symlinks are created after all
// other entries so no file is ever written through one.
func (tarball) Unpack(ctx context.Context, src io.Reader, dest string) error {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	type dirMode struct {
		path string
		mode fs.FileMode
	}
	var (
		dirs  []dirMode
		links []link
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if hdr.Typeflag == tar.TypeSymlink {
			links = append(links, link{name: name, target: hdr.Linkname})
			continue
		}
		if err := checkPlain(dest, name); err != nil {
			return err
		}
		full := filepath.Join(dest, filepath.FromSlash(name))
		mode := fs.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(full, 0o755); err != nil {
				return err
			}
			dirs = append(dirs, dirMode{path: full, mode: mode})
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}
			if err := writeEntry(tr, full, mode); err != nil {
				return err
			}
		default:
			log.WithFields(log.Fields{"name": hdr.Name, "type": hdr.Typeflag}).Debug("skipping unsupported archive entry")
		}
	}

	for _, l := range links {
		if err := createLink(dest, l); err != nil {
			return err
		}
	}
	// a later link can change what an earlier target walks through
	for _, l := range links {
		if _, err := resolveInside(dest, path.Join(path.Dir(l.name), l.target)); err != nil {
			return fmt.Errorf("%w: %s -> %s", err, l.name, l.target)
		}
	}

	// applied last so read-only directories do not block their own children
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chmod(dirs[i].path, dirs[i].mode); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(r io.Reader, full string, mode fs.FileMode) error {
	fp, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fp, r); err != nil {
		fp.Close()
		return err
	}
	if err := fp.Close(); err != nil {
		return err
	}
	return os.Chmod(full, mode)
}

func safeName(name string) (string, error) {
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	if clean == "." {
		return "", nil
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsafeArchive, name)
	}
	return clean, nil
}

// checkPlain rejects an entry whose parent directories or own path are
// symlinks on disk.
func checkPlain(dest, name string) error {
	parent := path.Dir(name)
	resolved, err := resolveInside(dest, parent)
	if err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	if resolved != path.Clean(parent) {
		return fmt.Errorf("%w: %s passes through a symlink", domain.ErrUnsafeArchive, name)
	}
	fi, err := os.Lstat(filepath.Join(dest, filepath.FromSlash(name)))
	if err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a symlink", domain.ErrUnsafeArchive, name)
	}
	return nil
}

func createLink(dest string, l link) error {
	if path.IsAbs(l.target) || filepath.IsAbs(l.target) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrUnsafeArchive, l.name, l.target)
	}
	if err := checkPlain(dest, l.name); err != nil {
		return err
	}
	full := filepath.Join(dest, filepath.FromSlash(l.name))
	if _, err := os.Lstat(full); err == nil {
		return fmt.Errorf("%w: %s replaces an extracted entry", domain.ErrUnsafeArchive, l.name)
	}
	if _, err := resolveInside(dest, path.Join(path.Dir(l.name), l.target)); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, l.name, l.target)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.Symlink(l.target, full)
}

// resolveInside walks rel below dest one component at a time, following
// symlinks found on disk, and returns the slash path it lands on. Leaving
// dest at any step is domain.ErrUnsafeArchive. Missing components resolve
// lexically.
func resolveInside(dest, rel string) (string, error) {
	var cur []string
	pending := strings.Split(filepath.ToSlash(rel), "/")
	hops := 0

	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			if len(cur) == 0 {
				return "", domain.ErrUnsafeArchive
			}
			cur = cur[:len(cur)-1]
			continue
		}

		next := append(slices.Clone(cur), part)
		full := filepath.Join(dest, filepath.FromSlash(path.Join(next...)))
		fi, err := os.Lstat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				cur = next
				continue
			}
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}

		hops++
		if hops > maxLinkHops {
			return "", domain.ErrUnsafeArchive
		}
		target, err := os.Readlink(full)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			return "", domain.ErrUnsafeArchive
		}
		pending = append(strings.Split(filepath.ToSlash(target), "/"), pending...)
	}

	if len(cur) == 0 {
		return ".", nil
	}
	return path.Join(cur...), nil
}

type countingWriter struct {
	dest io.Writer
	n    int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.n += int64(n)
	return n, err
}
