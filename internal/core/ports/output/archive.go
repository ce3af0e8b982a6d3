package ports

import (
	"context"
	"io"
)

// ArchiveCodec packs directory trees into a single portable stream.
type ArchiveCodec interface {
	// Extension is the archive file extension including the dot.
	Extension() string
	// Pack writes every entry (a path relative to root) recursively.
	Pack(ctx context.Context, root string, entries []string, dest io.Writer) error
	// Unpack extracts src below dest, rejecting entries outside of it.
	Unpack(ctx context.Context, src io.Reader, dest string) error
}
