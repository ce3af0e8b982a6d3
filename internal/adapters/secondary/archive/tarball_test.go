package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-repository-service/internal/core/domain"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestTarball_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"dev/parameters.yaml":    "model: RIDGE\n",
		"dev/model.json":         `{"schema_version":1}`,
		"ver000001/model.json":   `{"schema_version":1}`,
		"ver000001/nested/x.bin": "\x00\x01\x02",
		"stray-file-not-packed":  "ignored",
	})
	require.NoError(t, os.Mkdir(filepath.Join(src, "ver000001", "empty"), 0o755))
	require.NoError(t, os.Chmod(filepath.Join(src, "dev", "model.json"), 0o600))

	codec := NewTarball()
	var buf bytes.Buffer
	require.NoError(t, codec.Pack(ctx, src, []string{"dev", "ver000001"}, &buf))

	dest := t.TempDir()
	require.NoError(t, codec.Unpack(ctx, &buf, dest))

	for _, name := range []string{"dev/parameters.yaml", "dev/model.json", "ver000001/model.json", "ver000001/nested/x.bin"} {
		want, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	info, err := os.Stat(filepath.Join(dest, "dev", "model.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dest, "ver000001", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dest, "stray-file-not-packed"))
	assert.True(t, os.IsNotExist(err))
}

func TestTarball_UnpackRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := filepath.Join(t.TempDir(), "endpoint")
	require.NoError(t, os.Mkdir(dest, 0o755))

	err = NewTarball().Unpack(context.Background(), &buf, dest)
	assert.ErrorIs(t, err, domain.ErrUnsafeArchive)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTarball_UnpackRejectsEscapingSymlink(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dev/link", Linkname: "../../etc/passwd", Typeflag: tar.TypeSymlink}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err := NewTarball().Unpack(context.Background(), &buf, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrUnsafeArchive)
}

type tarEntry struct {
	name   string
	link   string
	body   string
	isLink bool
}

func buildArchive(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if e.isLink {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Linkname: e.link, Typeflag: tar.TypeSymlink}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestTarball_UnpackRejectsChainedSymlinks(t *testing.T) {
	repo := t.TempDir()
	dest := filepath.Join(repo, "evil")
	require.NoError(t, os.Mkdir(dest, 0o755))

	buf := buildArchive(t, []tarEntry{
		{name: "dev/l", link: "..", isLink: true},
		{name: "dev/l/m", link: "..", isLink: true},
		{name: "dev/l/m/victim/dev/model.json", body: "owned"},
	})

	err := NewTarball().Unpack(context.Background(), buf, dest)
	assert.ErrorIs(t, err, domain.ErrUnsafeArchive)
	_, statErr := os.Stat(filepath.Join(repo, "victim"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTarball_UnpackRejectsWritesThroughSymlinks(t *testing.T) {
	repo := t.TempDir()
	dest := filepath.Join(repo, "evil")
	require.NoError(t, os.Mkdir(dest, 0o755))

	// links only, so the second one must be judged against the first on disk
	buf := buildArchive(t, []tarEntry{
		{name: "dev/l", link: "..", isLink: true},
		{name: "dev/l/m", link: "..", isLink: true},
	})

	err := NewTarball().Unpack(context.Background(), buf, dest)
	assert.ErrorIs(t, err, domain.ErrUnsafeArchive)
	_, statErr := os.Lstat(filepath.Join(dest, "m"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTarball_UnpackRejectsLinkRetargetedByLaterLink(t *testing.T) {
	buf := buildArchive(t, []tarEntry{
		{name: "dev/k", link: "a/../../outside", isLink: true},
		{name: "dev/a", link: "..", isLink: true},
	})

	err := NewTarball().Unpack(context.Background(), buf, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrUnsafeArchive)
}

func TestTarball_UnpackKeepsInternalSymlinks(t *testing.T) {
	dest := t.TempDir()
	buf := buildArchive(t, []tarEntry{
		{name: "dev/shared", link: "../ver000001/model.json", isLink: true},
		{name: "ver000001/model.json", body: `{"schema_version":1}`},
	})

	require.NoError(t, NewTarball().Unpack(context.Background(), buf, dest))
	data, err := os.ReadFile(filepath.Join(dest, "dev", "shared"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema_version":1}`, string(data))
}

func TestTarball_PackHonoursCancelledContext(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"dev/a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewTarball().Pack(ctx, src, []string{"dev"}, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
