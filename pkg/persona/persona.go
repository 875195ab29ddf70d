// Package persona loads voice.Config values from YAML.
//
// Two presets ship with the binary: "sara" and "john". Anything else passed
// to Load is treated as a path to a YAML file. Fields missing from a file
// keep their voice.DefaultConfig values.
package persona

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

//go:embed presets/*.yaml
var presets embed.FS

// ErrUnknownPersona is returned when a name is neither a preset nor a file.
var ErrUnknownPersona = errors.New("persona: unknown persona")

// Load returns the preset called nameOrPath, or parses the file at that path.
func Load(nameOrPath string) (voice.Config, error) {
	if data, err := presets.ReadFile(path.Join("presets", strings.ToLower(nameOrPath)+".yaml")); err == nil {
		return Parse(data)
	}

	data, err := os.ReadFile(nameOrPath)
	if errors.Is(err, fs.ErrNotExist) {
		return voice.Config{}, fmt.Errorf("%w: %s", ErrUnknownPersona, nameOrPath)
	}
	if err != nil {
		return voice.Config{}, fmt.Errorf("persona: read %s: %w", nameOrPath, err)
	}
	return Parse(data)
}

// Parse decodes a YAML persona over the defaults and validates it.
func Parse(data []byte) (voice.Config, error) {
	cfg := voice.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return voice.Config{}, fmt.Errorf("persona: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return voice.Config{}, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML, the inverse of Parse.
func Marshal(cfg voice.Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Save writes cfg to a YAML file.
func Save(file string, cfg voice.Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0o640)
}

// Presets returns the names of the embedded personas.
func Presets() []string {
	entries, err := presets.ReadDir("presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
