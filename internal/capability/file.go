package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a static capability table:
//
//	providers:
//	  acme: [fetch-datasheet, fetch-pricing]
type fileFormat struct {
	Providers map[string][]string `yaml:"providers"`
}

// LoadFile reads a YAML capability table into r.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read capability file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML registers every provider listed in data. Unknown capability
// names are rejected so typos do not silently shrink a provider's set.
func (r *Registry) LoadYAML(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse capability file: %w", err)
	}

	for provider, raw := range f.Providers {
		caps := make([]Name, 0, len(raw))
		for _, s := range raw {
			c, err := Parse(s)
			if err != nil {
				return fmt.Errorf("provider %s: %w", provider, err)
			}
			caps = append(caps, c)
		}
		r.Register(provider, caps...)
	}
	return nil
}
