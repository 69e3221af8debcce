// Package toggle implements threshold-bearing accessibility settings
// (autoclick delay, long-press timeout, and similar) with one policy driven
// by Spec records instead of one controller per feature.
package toggle

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	ErrUnknownToggle = errors.New("toggle: unknown key")
	ErrOutOfRange    = errors.New("toggle: value out of range")
	ErrInvalidSpec   = errors.New("toggle: invalid spec")
)

// Spec configures one setting. Min and Max bound accepted values when Max is
// greater than Min. An empty Predicate makes the setting always available.
type Spec struct {
	Key              string `toml:"key"`
	Label            string `toml:"label"`
	DefaultThreshold int    `toml:"default_threshold"`
	Min              int    `toml:"min"`
	Max              int    `toml:"max"`
	Predicate        string `toml:"predicate"`
}

func (s Spec) bounded() bool {
	return s.Max > s.Min
}

func (s Spec) accepts(value int) bool {
	return !s.bounded() || (value >= s.Min && value <= s.Max)
}

// Validate reports a Spec that cannot be used.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidSpec)
	}
	if !s.accepts(s.DefaultThreshold) {
		return fmt.Errorf("%w: %s default %d outside [%d, %d]", ErrInvalidSpec, s.Key, s.DefaultThreshold, s.Min, s.Max)
	}
	return nil
}

type specFile struct {
	Engine  string `toml:"engine"`
	Toggles []Spec `toml:"toggle"`
}

// File is a parsed spec document.
type File struct {
	// Engine names the predicate engine: expr (default), cel or js.
	Engine string
	Specs  []Spec
}

// ParseSpecs decodes a TOML document of [[toggle]] tables. Unknown keys are
// rejected so typos do not silently disable a bound.
func ParseSpecs(data string) (File, error) {
	var raw specFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return File{}, fmt.Errorf("toggle: parse specs: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return File{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidSpec, strings.Join(keys, ", "))
	}
	for _, spec := range raw.Toggles {
		if err := spec.Validate(); err != nil {
			return File{}, err
		}
	}
	return File{Engine: raw.Engine, Specs: raw.Toggles}, nil
}

// LoadSpecs reads and parses the spec file at path.
func LoadSpecs(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("toggle: read specs: %w", err)
	}
	return ParseSpecs(string(data))
}
