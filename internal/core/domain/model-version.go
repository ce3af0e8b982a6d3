package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DevVersion is the id of the mutable working version of every endpoint.
const DevVersion = 0

const (
	devLabel      = "dev"
	versionPrefix = "ver"
	versionDigits = 6
)

// VersionLabel returns the directory name of a version: "dev" for 0 and
// "ver%06d" otherwise.
func VersionLabel(id int) string {
	if id == DevVersion {
		return devLabel
	}
	return fmt.Sprintf("%s%0*d", versionPrefix, versionDigits, id)
}

// ParseVersionLabel is the inverse of VersionLabel. Legacy trees may carry
// labels with more than six digits; only the numeric suffix matters.
func ParseVersionLabel(label string) (int, bool) {
	if label == devLabel {
		return DevVersion, true
	}
	if !strings.HasPrefix(label, versionPrefix) {
		return 0, false
	}
	digits := strings.TrimPrefix(label, versionPrefix)
	if len(digits) < versionDigits {
		return 0, false
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseVersionID parses a version reference as given by callers: "dev", a
// plain integer or a directory label.
func ParseVersionID(s string) (int, error) {
	if id, ok := ParseVersionLabel(s); ok {
		return id, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, ErrInvalidVersion
	}
	return id, nil
}

type Version struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

func NewVersion(id int) Version {
	return Version{ID: id, Label: VersionLabel(id)}
}
