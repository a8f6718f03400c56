package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lox/solarcast/internal/models"
)

type citiesFile struct {
	Cities []models.City `yaml:"cities"`
}

// LoadCities reads a YAML cities file. An empty path returns the default cities.
//
//	cities:
//	  - name: Pune
//	    latitude: 18.5204
//	    longitude: 73.8567
func LoadCities(path string) ([]models.City, error) {
	if path == "" {
		return append([]models.City(nil), models.DefaultCities...), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}

	var f citiesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse cities file: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("cities file %s lists no cities", path)
	}

	seen := make(map[string]bool, len(f.Cities))
	for i, c := range f.Cities {
		switch {
		case c.Name == "":
			return nil, fmt.Errorf("city %d: missing name", i)
		case strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == "..":
			// Names become plot file names.
			return nil, fmt.Errorf("city %q: name must not contain path separators", c.Name)
		case seen[c.Name]:
			return nil, fmt.Errorf("city %q listed twice", c.Name)
		case c.Latitude < -90 || c.Latitude > 90:
			return nil, fmt.Errorf("city %q: latitude %v out of range", c.Name, c.Latitude)
		case c.Longitude < -180 || c.Longitude > 180:
			return nil, fmt.Errorf("city %q: longitude %v out of range", c.Name, c.Longitude)
		}
		seen[c.Name] = true
	}
	return f.Cities, nil
}
