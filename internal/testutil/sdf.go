package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Molecule describes one synthetic SD record.
type Molecule struct {
	Name   string
	Atoms  int
	Bonds  int
	Fields map[string]string
}

// SDFRecord renders m as an SD record including its "$$$$" terminator.
func SDFRecord(m Molecule) string {
	var b strings.Builder
	b.WriteString(m.Name + "\n")
	b.WriteString("  synthetic\n\n")
	fmt.Fprintf(&b, "%3d%3d  0  0  0  0  0  0  0  0999 V2000\n", m.Atoms, m.Bonds)
	for i := 0; i < m.Atoms; i++ {
		fmt.Fprintf(&b, "%10.4f%10.4f%10.4f C   0  0  0  0  0  0  0  0  0  0  0  0\n", float64(i), 0.0, 0.0)
	}
	for i := 0; i < m.Bonds; i++ {
		fmt.Fprintf(&b, "%3d%3d  1  0\n", i+1, i+2)
	}
	b.WriteString("M  END\n")

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ">  <%s>\n%s\n\n", k, m.Fields[k])
	}
	b.WriteString("$$$$\n")
	return b.String()
}

// Molecules returns n records whose activity is 2*atoms + 1 and whose "logp"
// descriptor is atoms/2.
func Molecules(n int) []Molecule {
	mols := make([]Molecule, n)
	for i := range mols {
		atoms := i + 1
		mols[i] = Molecule{
			Name:  fmt.Sprintf("mol-%d", i),
			Atoms: atoms,
			Bonds: i,
			Fields: map[string]string{
				"name":     fmt.Sprintf("compound-%d", i),
				"activity": fmt.Sprintf("%g", float64(2*atoms+1)),
				"logp":     fmt.Sprintf("%g", float64(atoms)/2),
			},
		}
	}
	return mols
}

// WriteSDF writes mols to dir/name and returns the path.
func WriteSDF(t testing.TB, dir, name string, mols []Molecule) string {
	t.Helper()
	var b strings.Builder
	for _, m := range mols {
		b.WriteString(SDFRecord(m))
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}
