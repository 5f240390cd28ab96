package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// Parse decodes every YAML document in r as a Definition. Unknown keys are
// rejected. Failures are *pattern.ConfigError.
func Parse(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []Definition
	for {
		var d Definition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, pattern.NewConfigError(fmt.Sprintf("document %d", len(defs)), err)
		}
		defs = append(defs, d)
	}
	if len(defs) == 0 {
		return nil, pattern.Configf("", "no plugin definitions found")
	}
	return defs, nil
}

// LoadFile reads the definitions in one YAML file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin file: %w", err)
	}
	defs, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadDir reads every .yaml and .yml file in dir, in name order.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []Definition
	for _, name := range names {
		d, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, d...)
	}
	return defs, nil
}

// Load reads a plugin file or directory.
func Load(path string) ([]Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plugin path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadParams reads a flat YAML mapping of parameter values. Scalars of any
// type are kept as written (year: 2020 becomes "2020").
func LoadParams(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode params file %s: %w", path, err)
	}
	params := make(map[string]string, len(raw))
	for k, n := range raw {
		if n.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("params file %s: %s must be a scalar", path, k)
		}
		params[k] = n.Value
	}
	return params, nil
}

// ParseParam splits a "name=value" command-line parameter.
func ParseParam(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("parameter %q: want name=value", s)
	}
	return name, value, nil
}
