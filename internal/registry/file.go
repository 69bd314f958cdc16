package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a datasets file:
//
//	datasets:
//	  - id: us_states
//	    url: https://example.com/states.zip
//	    name_field: STUSPS
type File struct {
	Datasets []Dataset `yaml:"datasets"`
}

// ReadFile parses a datasets file.
func ReadFile(path string) ([]Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read datasets file %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse datasets file %s", path)
	}
	return f.Datasets, nil
}

// LoadFile registers every dataset in path. Registration stops at the first
// invalid or duplicate entry.
func (r *Registry) LoadFile(path string) error {
	datasets, err := ReadFile(path)
	if err != nil {
		return err
	}
	for _, d := range datasets {
		if err := r.Register(d); err != nil {
			return eris.Wrapf(err, "registry: load %s", path)
		}
	}
	return nil
}
