package heuristics

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sortscan/internal/model"
)

// LoadRules reads the mismatch zone rule table from a YAML file. The file has
// a top-level "zones" key. Rules are immutable for the process lifetime.
func LoadRules(path string) ([]model.MismatchZoneRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "heuristics: read zone rules %s", path)
	}

	var wrapper struct {
		Zones []model.MismatchZoneRule `yaml:"zones"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "heuristics: parse zone rules")
	}

	for i := range wrapper.Zones {
		if wrapper.Zones[i].Priority == "" {
			wrapper.Zones[i].Priority = model.PriorityLow
		}
	}
	return wrapper.Zones, nil
}
