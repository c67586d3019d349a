package workflow

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// stdin feeds "-P -"; tests replace it.
var stdin io.Reader = os.Stdin

// ErrUnknownPipeline is returned by [Resolve] when the argument is neither a
// built-in name nor a readable file.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// ParseDefinitionYAML decodes and validates a definition from YAML bytes.
// Unknown keys are rejected.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitionReader reads definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a definition from an explicit file path.
func LoadDefinitionFile(p string) (Definition, error) {
	content, err := os.ReadFile(p)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", p, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", p, parseErr)
	}
	return def, nil
}

// Builtins returns every embedded definition sorted by name.
func Builtins() ([]Definition, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("workflow: list built-ins: %w", err)
	}
	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("workflow: read built-in %s: %w", entry.Name(), err)
		}
		def, err := ParseDefinitionYAML(data)
		if err != nil {
			return nil, fmt.Errorf("workflow: built-in %s: %w", entry.Name(), err)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Builtin returns the embedded definition with the given name.
func Builtin(name string) (Definition, bool) {
	defs, err := Builtins()
	if err != nil {
		return Definition{}, false
	}
	for _, def := range defs {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Resolve returns the built-in definition called nameOrPath, or loads it
// from disk when it names an existing file (or ends in .yaml/.yml). "-"
// reads the definition from standard input.
func Resolve(nameOrPath string) (Definition, error) {
	trimmed := strings.TrimSpace(nameOrPath)
	if trimmed == "-" {
		def, err := LoadDefinitionReader(stdin)
		if err != nil {
			return Definition{}, fmt.Errorf("workflow: stdin: %w", err)
		}
		return def, nil
	}
	if def, ok := Builtin(trimmed); ok {
		return def, nil
	}
	if isYAMLFile(trimmed) {
		return LoadDefinitionFile(trimmed)
	}
	if info, err := os.Stat(trimmed); err == nil && !info.IsDir() {
		return LoadDefinitionFile(trimmed)
	}
	return Definition{}, fmt.Errorf("%w %q (see --list-pipelines)", ErrUnknownPipeline, trimmed)
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
