package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EndpointTree is the listing shape {endpoint, [dev, ver000001, ...]}.
type EndpointTree struct {
	Endpoint string    `json:"endpoint"`
	Versions []Version `json:"versions"`
}

// ValidateEndpointName rejects names that cannot be used as a single
// directory below the repository root.
func ValidateEndpointName(name string) error {
	if name == "" {
		return ErrEmptyEndpointName
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidEndpointName
	}
	return nil
}

const ManifestSchemaVersion = 1

// Manifest is the per-endpoint record of published versions. LastID is a
// high-water mark and never decreases, so deleted ids are not reassigned.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	Endpoint      string    `json:"endpoint"`
	LastID        int       `json:"last_id"`
	Versions      []int     `json:"versions"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewManifest(endpoint string) *Manifest {
	return &Manifest{
		SchemaVersion: ManifestSchemaVersion,
		Endpoint:      endpoint,
		Versions:      []int{},
		UpdatedAt:     time.Now().UTC(),
	}
}

// ManifestFromVersions rebuilds a manifest from a directory scan.
func ManifestFromVersions(endpoint string, ids []int) *Manifest {
	m := NewManifest(endpoint)
	for _, id := range ids {
		if id <= DevVersion {
			continue
		}
		m.Versions = append(m.Versions, id)
		if id > m.LastID {
			m.LastID = id
		}
	}
	slices.Sort(m.Versions)
	return m
}

func (m *Manifest) NextID() int {
	return m.LastID + 1
}

func (m *Manifest) has(id int) bool {
	return slices.Contains(m.Versions, id)
}

func (m *Manifest) Add(id int) {
	if !m.has(id) {
		m.Versions = append(m.Versions, id)
		slices.Sort(m.Versions)
	}
	if id > m.LastID {
		m.LastID = id
	}
	m.UpdatedAt = time.Now().UTC()
}

func (m *Manifest) Remove(id int) {
	m.Versions = slices.DeleteFunc(m.Versions, func(v int) bool { return v == id })
	m.UpdatedAt = time.Now().UTC()
}

// Reconcile folds ids found on disk into the manifest. Directories created
// outside the service must not cause a later publish to collide with them.
func (m *Manifest) Reconcile(onDisk []int) {
	present := make([]int, 0, len(onDisk))
	for _, id := range onDisk {
		if id <= DevVersion {
			continue
		}
		present = append(present, id)
		if id > m.LastID {
			m.LastID = id
		}
	}
	slices.Sort(present)
	m.Versions = present
}

type VersionAction string

const (
	VersionActionCreateEndpoint VersionAction = "CREATE_ENDPOINT"
	VersionActionDeleteEndpoint VersionAction = "DELETE_ENDPOINT"
	VersionActionPublish        VersionAction = "PUBLISH"
	VersionActionDeleteVersion  VersionAction = "DELETE_VERSION"
	VersionActionImport         VersionAction = "IMPORT"
	VersionActionExport         VersionAction = "EXPORT"
	VersionActionBuild          VersionAction = "BUILD"
)

// VersionEvent is an audit entry kept by the version catalog.
type VersionEvent struct {
	ID        uuid.UUID     `json:"id"`
	Endpoint  string        `json:"endpoint"`
	Version   int           `json:"version"`
	Action    VersionAction `json:"action"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}
