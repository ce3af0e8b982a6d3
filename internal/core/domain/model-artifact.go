package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	ArtifactSchemaVersion = 1

	ModelFileName = "model.json"
	InfoFileName  = "info.json"
)

// InfoItem is one (name, unit, value) triple of build or validation
// statistics.
type InfoItem struct {
	Name  string `json:"name"`
	Unit  string `json:"unit"`
	Value any    `json:"value"`
}

// Stats is an ordered record of statistics produced by a backend phase.
type Stats []InfoItem

// ModelInfo is the content of info.json: build statistics followed by
// validation statistics.
type ModelInfo struct {
	SchemaVersion int    `json:"schema_version"`
	Backend       string `json:"backend"`
	Build         Stats  `json:"build"`
	Validation    Stats  `json:"validation"`
}

// ModelArtifact is the envelope of model.json. Model holds the backend's own
// serialized state.
type ModelArtifact struct {
	SchemaVersion int             `json:"schema_version"`
	Backend       string          `json:"backend"`
	CreatedAt     time.Time       `json:"created_at"`
	Parameters    Parameters      `json:"parameters"`
	Model         json.RawMessage `json:"model"`
}

func (a *ModelArtifact) CheckSchema() error {
	if a.SchemaVersion != ArtifactSchemaVersion {
		return fmt.Errorf("%w: model schema %d", ErrIncompatibleSchema, a.SchemaVersion)
	}
	return nil
}

func (i *ModelInfo) CheckSchema() error {
	if i.SchemaVersion != ArtifactSchemaVersion {
		return fmt.Errorf("%w: info schema %d", ErrIncompatibleSchema, i.SchemaVersion)
	}
	return nil
}

// Items returns build then validation statistics as one ordered list.
func (i *ModelInfo) Items() []InfoItem {
	items := make([]InfoItem, 0, len(i.Build)+len(i.Validation))
	items = append(items, i.Build...)
	items = append(items, i.Validation...)
	return items
}

// Normalized returns the items with every value narrowed to a JSON-safe
// type.
func (i *ModelInfo) Normalized() []InfoItem {
	items := i.Items()
	for k := range items {
		items[k].Value = NormalizeValue(items[k].Value)
	}
	return items
}

// Text renders the items one per line as "name (unit) : value".
func (i *ModelInfo) Text() string {
	var b strings.Builder
	for _, it := range i.Items() {
		fmt.Fprintf(&b, "%s (%s) : %v\n", it.Name, it.Unit, NormalizeValue(it.Value))
	}
	return b.String()
}

// NormalizeValue narrows fixed-width numeric values to int64 or float64.
// Non-finite floats cannot be encoded as JSON and become nil.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	case float32:
		return finiteOrNil(float64(n))
	case float64:
		return finiteOrNil(n)
	case []float64:
		out := make([]any, len(n))
		for k, f := range n {
			out[k] = finiteOrNil(f)
		}
		return out
	default:
		return v
	}
}

func finiteOrNil(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
