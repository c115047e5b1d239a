package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Targets lists the discovery inputs kept outside config.yaml so they can be
// curated per market.
type Targets struct {
	Countries []string         `yaml:"countries"`
	Platforms []string         `yaml:"platforms"`
	Tags      []string         `yaml:"tags"`
	Keywords  []string         `yaml:"keywords"`
	Locations []TargetLocation `yaml:"locations"`
	External  []TargetSource   `yaml:"external"`
}

// TargetLocation is a location page to enumerate.
type TargetLocation struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
}

// TargetSource is an external listing to import handles from.
type TargetSource struct {
	URL      string `yaml:"url"`
	Format   string `yaml:"format"`
	Column   string `yaml:"column"`
	Platform string `yaml:"platform"`
	Country  string `yaml:"country"`
}

// LoadTargets reads a YAML targets file.
func LoadTargets(path string) (*Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read targets %s", path)
	}
	var t Targets
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "config: parse targets %s", path)
	}
	return &t, nil
}
