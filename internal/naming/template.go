package naming

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrUnknownPlaceholder is returned by [Expand] when a template references a
// name that has no value.
var ErrUnknownPlaceholder = errors.New("unknown placeholder")

var rePlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Vars maps placeholder names (without braces) to their values.
type Vars map[string]string

// Built-in placeholder names available to every template.
const (
	VarBase    = "base"    // Dataset root.
	VarSub     = "sub"     // Subject directory name, e.g. "sub-01".
	VarSes     = "ses"     // Session directory name, empty without sessions.
	VarLabel   = "label"   // Subject label without "sub-".
	VarSubdir  = "subdir"  // <base>/<sub>/<ses>.
	VarPrefix  = "prefix"  // <sub>_<ses>.
	VarThreads = "threads" // Per-tool thread count.
)

// BuiltinNames lists the placeholders provided by [SubjectVars] plus
// {threads}, in sorted order.
func BuiltinNames() []string {
	names := []string{VarBase, VarSub, VarSes, VarLabel, VarSubdir, VarPrefix, VarThreads}
	sort.Strings(names)
	return names
}

// SubjectVars returns the built-in placeholders for one subject.
func SubjectVars(base string, s Subject) Vars {
	return Vars{
		VarBase:   base,
		VarSub:    s.ID,
		VarSes:    s.Session,
		VarLabel:  s.Label(),
		VarSubdir: s.Dir(base),
		VarPrefix: s.Prefix(),
	}
}

// Expand substitutes every {name} in tmpl with vars[name]. Text that does
// not look like a placeholder (e.g. "{}" or "{1,2}") is left untouched.
func Expand(tmpl string, vars Vars) (string, error) {
	var missing string
	out := rePlaceholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("%w {%s} in %q", ErrUnknownPlaceholder, missing, tmpl)
	}
	return out, nil
}

// ExpandAll expands each template in order, stopping at the first error.
func ExpandAll(tmpls []string, vars Vars) ([]string, error) {
	if len(tmpls) == 0 {
		return nil, nil
	}
	out := make([]string, len(tmpls))
	for i, t := range tmpls {
		s, err := Expand(t, vars)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names referenced by tmpl in
// order of first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range rePlaceholder.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
