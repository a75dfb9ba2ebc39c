package scheduler

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

var validate = validator.New()

// Location is a named point the scheduler ingests on every tick.
type Location struct {
	Name      string  `yaml:"name" validate:"required"`
	Latitude  float64 `yaml:"latitude" validate:"latitude"`
	Longitude float64 `yaml:"longitude" validate:"longitude"`
}

// Validate checks the coordinates are in range and the name is set.
func (l Location) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("location %q: %w", l.Name, err)
	}
	return nil
}

type locationsFile struct {
	Locations []Location `yaml:"locations"`
}

// LoadLocations reads a YAML locations file:
//
//	locations:
//	  - name: berlin
//	    latitude: 52.52
//	    longitude: 13.41
func LoadLocations(path string) ([]Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}
	locs, err := ParseLocations(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return locs, nil
}

// ParseLocations decodes and validates a locations document. Names must be
// unique and at least one location is required.
func ParseLocations(data []byte) ([]Location, error) {
	var f locationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locations: %w", err)
	}
	if len(f.Locations) == 0 {
		return nil, errors.New("no locations configured")
	}

	seen := make(map[string]bool, len(f.Locations))
	for _, l := range f.Locations {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("duplicate location %q", l.Name)
		}
		seen[l.Name] = true
	}
	return f.Locations, nil
}

// Query returns the ingestion query for l over [start, end].
func (l Location) Query(start, end time.Time) domain.Query {
	return domain.Query{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		StartDate: start,
		EndDate:   end,
	}
}
