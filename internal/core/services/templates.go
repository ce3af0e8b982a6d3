package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const ParametersFile = "parameters.yaml"

// DefaultTemplates returns the files seeded into every new dev version.
func DefaultTemplates() (map[string][]byte, error) {
	params, err := yaml.Marshal(domain.DefaultParameters())
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ParametersFile, err)
	}
	return map[string][]byte{ParametersFile: params}, nil
}

// LoadParameters reads dev/parameters.yaml of an endpoint. Keys missing from
// the file keep their default; a missing file yields the defaults.
func LoadParameters(ctx context.Context, store ports.EndpointStore, name string) (domain.Parameters, error) {
	params := domain.DefaultParameters()

	data, err := store.ReadFile(ctx, name, domain.DevVersion, ParametersFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return params, nil
		}
		return params, err
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("%w: %s: %v", domain.ErrUserInput, ParametersFile, err)
	}
	return params, nil
}
