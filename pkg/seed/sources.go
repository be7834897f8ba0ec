package seed

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceMap names the CSV file expected for each entity inside the data
// directory. Absent files are skipped, not errors.
type SourceMap struct {
	Profiles     string `yaml:"profiles"`
	Appointments string `yaml:"appointments"`
	ABEvents     string `yaml:"ab_events"`
}

func DefaultSources() SourceMap {
	return SourceMap{
		Profiles:     "app_data.csv",
		Appointments: "appointments_data.csv",
		ABEvents:     "ab_test_data.csv",
	}
}

// LoadSources reads a YAML override of the default file map. An empty path
// returns the defaults. Entries missing from the file keep their default.
func LoadSources(path string) (SourceMap, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return sources, fmt.Errorf("reading source map: %w", err)
	}

	var override SourceMap
	if err := yaml.Unmarshal(content, &override); err != nil {
		return sources, fmt.Errorf("parsing source map: %w", err)
	}

	if override.Profiles != "" {
		sources.Profiles = override.Profiles
	}
	if override.Appointments != "" {
		sources.Appointments = override.Appointments
	}
	if override.ABEvents != "" {
		sources.ABEvents = override.ABEvents
	}
	return sources, nil
}
