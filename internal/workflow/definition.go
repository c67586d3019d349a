package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/neurobatch/internal/naming"
)

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition declares an ordered pipeline of external tool steps. Every path
// and argument is a template expanded per subject by the planner.
type Definition struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Per         Unit              `yaml:"per,omitempty"`
	Vars        VarList           `yaml:"vars,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Steps       []Step            `yaml:"steps"`
}

// Unit is what one pipeline run covers.
type Unit string

const (
	// PerSession runs once per (subject, session) found. The default.
	PerSession Unit = "session"
	// PerSubject runs once per subject; the tool handles every session
	// itself (participant-level BIDS apps such as fMRIPrep).
	PerSubject Unit = "subject"
)

// Units maps discovered subjects onto the units def runs over. For
// per-subject definitions sessions are dropped and each subject appears once,
// at the position of its first session.
func (def Definition) Units(found []naming.Subject) []naming.Subject {
	if def.Per != PerSubject {
		return found
	}
	seen := map[string]bool{}
	out := make([]naming.Subject, 0, len(found))
	for _, s := range found {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, naming.Subject{ID: s.ID})
	}
	return out
}

// Step is one external tool invocation. Outputs drive the skip check: the
// step runs only while at least one of them is missing or empty.
type Step struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Tool        string            `yaml:"tool"`
	Args        []string          `yaml:"args,omitempty"`
	Inputs      []string          `yaml:"inputs,omitempty"`
	Outputs     []string          `yaml:"outputs"`
	Workdir     string            `yaml:"workdir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Timeout     Duration          `yaml:"timeout,omitempty"`
}

// Var is one named template value. Vars are expanded in declaration order,
// so a var may reference built-in placeholders and any earlier var.
type Var struct {
	Name  string
	Value string
}

// VarList preserves the declaration order of the YAML "vars" mapping.
type VarList []Var

// UnmarshalYAML decodes a mapping node into an ordered list.
func (l *VarList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: vars must be a mapping", node.Line)
	}
	out := make(VarList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: var %q must be a string", val.Line, key.Value)
		}
		out = append(out, Var{Name: key.Value, Value: val.Value})
	}
	*l = out
	return nil
}

// MarshalYAML renders the list back as an ordered mapping.
func (l VarList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, v := range l {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: v.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v.Value},
		)
	}
	return node, nil
}

// Duration is a time.Duration written as a Go duration string ("90m", "12h").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", node.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Validate ensures the definition is self-consistent: unique step names,
// a tool and at least one output per step, and no reference to an
// undefined placeholder.
func (def Definition) Validate() error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("workflow: name is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %s: at least one step is required", def.Name)
	}

	switch def.Per {
	case "", PerSession, PerSubject:
	default:
		return fmt.Errorf("workflow %s: invalid per %q (use %q or %q)", def.Name, def.Per, PerSession, PerSubject)
	}

	known := map[string]bool{}
	for _, name := range naming.BuiltinNames() {
		known[name] = true
	}
	if def.Per == PerSubject {
		// A per-subject run has no session of its own.
		delete(known, naming.VarSes)
	}
	for _, v := range def.Vars {
		if !reIdent.MatchString(v.Name) {
			return fmt.Errorf("workflow %s: invalid var name %q", def.Name, v.Name)
		}
		if known[v.Name] {
			return fmt.Errorf("workflow %s: var %q is already defined", def.Name, v.Name)
		}
		if err := checkRefs(v.Value, known); err != nil {
			return fmt.Errorf("workflow %s var %s: %w", def.Name, v.Name, err)
		}
		known[v.Name] = true
	}
	for key, val := range def.Env {
		if err := checkRefs(val, known); err != nil {
			return fmt.Errorf("workflow %s env %s: %w", def.Name, key, err)
		}
	}

	seen := map[string]struct{}{}
	for idx, step := range def.Steps {
		if err := step.validate(known); err != nil {
			return fmt.Errorf("workflow %s step[%d]: %w", def.Name, idx, err)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("workflow %s: duplicate step name %s", def.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

func (s Step) validate(known map[string]bool) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.Tool) == "" {
		return fmt.Errorf("%s: tool is required", s.Name)
	}
	if len(s.Outputs) == 0 {
		return fmt.Errorf("%s: at least one output is required", s.Name)
	}
	fields := [][]string{s.Args, s.Inputs, s.Outputs, {s.Tool, s.Workdir}}
	for _, group := range fields {
		for _, tmpl := range group {
			if err := checkRefs(tmpl, known); err != nil {
				return fmt.Errorf("%s: %w", s.Name, err)
			}
		}
	}
	for _, out := range s.Outputs {
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("%s: empty output path", s.Name)
		}
	}
	for key, val := range s.Env {
		if err := checkRefs(val, known); err != nil {
			return fmt.Errorf("%s env %s: %w", s.Name, key, err)
		}
	}
	return nil
}

func checkRefs(tmpl string, known map[string]bool) error {
	for _, name := range naming.Placeholders(tmpl) {
		if !known[name] {
			return fmt.Errorf("%w {%s}", naming.ErrUnknownPlaceholder, name)
		}
	}
	return nil
}

// Tools returns the distinct tool names used by the definition, sorted.
// Tools whose name is itself a template are omitted.
func (def Definition) Tools() []string {
	seen := map[string]bool{}
	var tools []string
	for _, s := range def.Steps {
		if seen[s.Tool] || len(naming.Placeholders(s.Tool)) > 0 {
			continue
		}
		seen[s.Tool] = true
		tools = append(tools, s.Tool)
	}
	sort.Strings(tools)
	return tools
}

// StepNames returns step names in declaration order.
func (def Definition) StepNames() []string {
	names := make([]string, len(def.Steps))
	for i, s := range def.Steps {
		names[i] = s.Name
	}
	return names
}
