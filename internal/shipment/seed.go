package shipment

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/mod/semver"
)

//go:embed seed.json
var defaultSeed []byte

// Seed is a versioned fixed dataset in the remote payload shape.
type Seed struct {
	Version string        `json:"version"`
	Items   []APIShipment `json:"shipments"`
}

// DefaultSeed returns the dataset embedded in the binary.
func DefaultSeed() (*Seed, error) {
	return LoadSeed(bytes.NewReader(defaultSeed))
}

// LoadSeedFile reads a seed dataset from disk.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := LoadSeed(f)
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seed, nil
}

// LoadSeed decodes and validates a seed dataset. The version must be a
// semantic version ("v1.2.0") and order IDs must be unique.
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks the version and every record.
func (s *Seed) Validate() error {
	if !semver.IsValid(s.Version) {
		return fmt.Errorf("seed version %q is not a semantic version", s.Version)
	}
	seen := make(map[int64]bool, len(s.Items))
	for i := range s.Items {
		id := s.Items[i].OrderID
		if seen[id] {
			return fmt.Errorf("seed has duplicate order_id %d", id)
		}
		seen[id] = true
	}
	if _, err := MapAll(s.Items, time.Now()); err != nil {
		return fmt.Errorf("invalid seed record: %w", err)
	}
	return nil
}

// Rows maps the seed onto local rows stamped with now.
func (s *Seed) Rows(now time.Time) ([]Shipment, error) {
	return MapAll(s.Items, now)
}

// Newer reports whether s is a newer dataset than version.
// An empty or invalid version is always older.
func (s *Seed) Newer(version string) bool {
	if !semver.IsValid(version) {
		return true
	}
	return semver.Compare(s.Version, version) > 0
}
