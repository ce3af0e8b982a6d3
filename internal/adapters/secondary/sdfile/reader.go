// Package sdfile reads and writes structure-data files: records of text
// lines, each terminated by a "$$$$" line, carrying a connection table and
// optional ">  <field>" data items.
package sdfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const (
	terminator   = "$$$$"
	maxLineBytes = 1 << 20
)

// Record is one entry of an SD file, without its terminator line.
type Record struct {
	Index int
	Lines []string
}

// Title is the first header line, conventionally the record name.
func (r Record) Title() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Lines[0])
}

// Counts parses atom and bond counts from the fourth line.
func (r Record) Counts() (atoms, bonds int, err error) {
	if len(r.Lines) < 4 {
		return 0, 0, fmt.Errorf("record %d: missing counts line", r.Index)
	}
	line := r.Lines[3]
	if len(line) < 6 {
		return 0, 0, fmt.Errorf("record %d: short counts line %q", r.Index, line)
	}
	atoms, err = strconv.Atoi(strings.TrimSpace(line[0:3]))
	if err != nil {
		return 0, 0, fmt.Errorf("record %d: atom count: %w", r.Index, err)
	}
	bonds, err = strconv.Atoi(strings.TrimSpace(line[3:6]))
	if err != nil {
		return 0, 0, fmt.Errorf("record %d: bond count: %w", r.Index, err)
	}
	return atoms, bonds, nil
}

// Fields returns the data items of the record keyed by field name. Only the
// first value line of each item is kept.
func (r Record) Fields() map[string]string {
	fields := make(map[string]string)
	for i := 0; i < len(r.Lines); i++ {
		line := r.Lines[i]
		if !strings.HasPrefix(line, ">") {
			continue
		}
		open := strings.Index(line, "<")
		end := strings.LastIndex(line, ">")
		if open < 0 || end <= open {
			continue
		}
		name := line[open+1 : end]
		if i+1 < len(r.Lines) {
			fields[name] = strings.TrimSpace(r.Lines[i+1])
		} else {
			fields[name] = ""
		}
	}
	return fields
}

// Block returns the record text followed by its terminator line.
func (r Record) Block() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(terminator)
	b.WriteByte('\n')
	return b.String()
}

// Scan calls fn for every record in order. Trailing non-blank text without a
// terminator counts as a final record.
func Scan(ctx context.Context, r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	index := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) != terminator {
			lines = append(lines, line)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(Record{Index: index, Lines: lines}); err != nil {
			return err
		}
		index++
		lines = nil
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(strings.Join(lines, "")) != "" {
		return fn(Record{Index: index, Lines: lines})
	}
	return nil
}

// ScanFile opens path and scans it.
func ScanFile(ctx context.Context, path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, path)
		}
		return domain.IOError("open dataset", err)
	}
	defer f.Close()
	return Scan(ctx, f, fn)
}

type reader struct{}

// NewReader returns the SD-file dataset reader.
func NewReader() ports.DatasetReader {
	return reader{}
}

func (reader) Count(ctx context.Context, path string) (int, error) {
	n := 0
	err := ScanFile(ctx, path, func(Record) error {
		n++
		return nil
	})
	return n, err
}

// Annotations extracts names, activities and experimental notes. A missing
// or non-numeric activity is recorded as nil.
func (reader) Annotations(ctx context.Context, path string, params domain.Parameters) (*domain.Annotations, error) {
	ann := &domain.Annotations{}
	err := ScanFile(ctx, path, func(rec Record) error {
		fields := rec.Fields()

		name := fields[params.SDFileName]
		if name == "" {
			name = rec.Title()
		}
		if name == "" {
			name = fmt.Sprintf("mol%010d", rec.Index)
		}
		ann.Names = append(ann.Names, name)

		var activity *float64
		if raw, ok := fields[params.SDFileActivity]; ok && params.SDFileActivity != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				activity = &v
			}
		}
		ann.Activities = append(ann.Activities, activity)
		ann.Experimental = append(ann.Experimental, fields[params.SDFileExperiment])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ann, nil
}

// WriteChunks streams the dataset once, sending every record to the file of
// the chunk whose range contains it.
func (reader) WriteChunks(ctx context.Context, path string, chunks []domain.Chunk, dir string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	files := make([]*bufio.Writer, len(chunks))
	handles := make([]*os.File, len(chunks))
	defer func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}()

	for i, c := range chunks {
		c.Path = filepath.Join(dir, fmt.Sprintf("chunk_%d.sdf", c.Index))
		f, err := os.Create(c.Path)
		if err != nil {
			return nil, domain.IOError("create chunk file", err)
		}
		handles[i] = f
		files[i] = bufio.NewWriter(f)
		out[i] = c
	}

	current := 0
	err := ScanFile(ctx, path, func(rec Record) error {
		for current < len(out) && rec.Index >= out[current].Offset+out[current].Count {
			current++
		}
		if current == len(out) {
			return nil
		}
		_, err := files[current].WriteString(rec.Block())
		return err
	})
	if err != nil {
		return nil, err
	}

	for i, w := range files {
		if err := w.Flush(); err != nil {
			return nil, domain.IOError("flush chunk file", err)
		}
		if err := handles[i].Close(); err != nil {
			return nil, domain.IOError("close chunk file", err)
		}
		handles[i] = nil
	}
	return out, nil
}
