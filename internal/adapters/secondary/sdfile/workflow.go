package sdfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const (
	methodNone        = "none"
	methodStandardize = "standardize"

	recordIDField = "record_id"
)

type workflow struct{}

// NewWorkflow returns the built-in per-chunk workflow. Structure
// standardisation keeps the connection table and data items and tags every
// record with a record_id; ionisation and 3D conversion only support "none".
func NewWorkflow() ports.Workflow {
	return workflow{}
}

func (workflow) Normalize(ctx context.Context, path, workDir string, params domain.Parameters) (string, error) {
	method := params.NormalizeMethod
	if method == "" || method == methodNone {
		return path, nil
	}
	if method != methodStandardize {
		return "", fmt.Errorf("%w: normalize %q", domain.ErrUnsupportedMethod, method)
	}

	out := derivedPath(path, workDir, "std")
	err := rewrite(ctx, path, out, func(rec Record) (Record, error) {
		if _, _, err := rec.Counts(); err != nil {
			return Record{}, fmt.Errorf("standardize: %w", err)
		}
		lines := trimTrailingBlank(rec.Lines)
		lines = append(lines, ">  <"+recordIDField+">", fmt.Sprintf("rec%010d", rec.Index), "")
		return Record{Index: rec.Index, Lines: lines}, nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (workflow) Ionize(_ context.Context, path, _ string, params domain.Parameters) (string, error) {
	if method := params.IonizeMethod; method != "" && method != methodNone {
		return "", fmt.Errorf("%w: ionize %q", domain.ErrUnsupportedMethod, method)
	}
	return path, nil
}

func (workflow) Convert3D(_ context.Context, path, _ string, params domain.Parameters) (string, error) {
	if method := params.Convert3DMethod; method != "" && method != methodNone {
		return "", fmt.Errorf("%w: convert3d %q", domain.ErrUnsupportedMethod, method)
	}
	return path, nil
}

// ComputeFeatures emits one row per record: atom count, bond count and then
// every configured descriptor field, which must be numeric.
func (workflow) ComputeFeatures(ctx context.Context, path string, params domain.Parameters) (domain.Matrix, error) {
	var rows [][]float64
	err := ScanFile(ctx, path, func(rec Record) error {
		atoms, bonds, err := rec.Counts()
		if err != nil {
			return err
		}
		row := make([]float64, 0, 2+len(params.DescriptorFields))
		row = append(row, float64(atoms), float64(bonds))

		if len(params.DescriptorFields) > 0 {
			fields := rec.Fields()
			for _, name := range params.DescriptorFields {
				raw, ok := fields[name]
				if !ok {
					return fmt.Errorf("record %d: missing descriptor %q", rec.Index, name)
				}
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return fmt.Errorf("record %d: descriptor %q: %w", rec.Index, name, err)
				}
				row = append(row, v)
			}
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return domain.Matrix{}, err
	}
	log.WithFields(log.Fields{"path": path, "rows": len(rows)}).Debug("features computed")
	return domain.NewMatrix(rows), nil
}

func derivedPath(path, workDir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(workDir, base+"_"+suffix+".sdf")
}

func rewrite(ctx context.Context, in, out string, fn func(Record) (Record, error)) error {
	f, err := os.Create(out)
	if err != nil {
		return domain.IOError("create "+filepath.Base(out), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = ScanFile(ctx, in, func(rec Record) error {
		next, err := fn(rec)
		if err != nil {
			return err
		}
		_, err = w.WriteString(next.Block())
		return err
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return domain.IOError("flush "+filepath.Base(out), err)
	}
	return f.Close()
}

func trimTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return append([]string(nil), lines[:end]...)
}
