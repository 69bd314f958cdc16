// Package registry maps dataset identifiers to the archives they are
// imported from.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// DefaultNameField is the attribute used as the shape name when a dataset
// does not declare one.
const DefaultNameField = "NAME"

// NaturalEarthCountries is the identifier of the built-in world countries
// dataset.
const NaturalEarthCountries = "natural_earth_countries"

// Dataset describes where an archive lives and which attribute names its
// shapes.
type Dataset struct {
	ID        string `yaml:"id" json:"id"`
	URL       string `yaml:"url" json:"url"`
	NameField string `yaml:"name_field" json:"name_field"`
}

// Registry is a concurrency-safe set of datasets keyed by ID.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{datasets: make(map[string]Dataset)}
}

// Builtin returns the datasets that ship with the binary.
func Builtin() []Dataset {
	return []Dataset{
		{
			ID:        NaturalEarthCountries,
			URL:       "http://www.naturalearthdata.com/http//www.naturalearthdata.com/download/110m/cultural/110m-admin-0-countries.zip",
			NameField: "NAME",
		},
	}
}

// Default returns a registry holding the built-in datasets.
func Default() *Registry {
	r := New()
	for _, d := range Builtin() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds d. IDs are unique; an empty NameField becomes
// DefaultNameField.
func (r *Registry) Register(d Dataset) error {
	d.ID = strings.TrimSpace(d.ID)
	d.URL = strings.TrimSpace(d.URL)
	if d.ID == "" {
		return eris.New("registry: dataset id is required")
	}
	if d.URL == "" {
		return eris.Errorf("registry: dataset %s has no url", d.ID)
	}
	if d.NameField == "" {
		d.NameField = DefaultNameField
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[d.ID]; ok {
		return eris.Errorf("registry: dataset %s already registered", d.ID)
	}
	r.datasets[d.ID] = d
	return nil
}

// Get returns the dataset registered under id.
func (r *Registry) Get(id string) (Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[id]
	return d, ok
}

// List returns all datasets sorted by ID.
func (r *Registry) List() []Dataset {
	r.mu.RLock()
	out := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all dataset IDs sorted.
func (r *Registry) IDs() []string {
	list := r.List()
	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.ID
	}
	return ids
}
