package tool

import (
	"sort"
	"strings"
	"time"
)

// Command is one fully expanded external tool invocation.
type Command struct {
	Name    string            // Program looked up on PATH.
	Args    []string          // Arguments, without the program name.
	Dir     string            // Working directory; empty inherits ours.
	Env     map[string]string // Added to the inherited environment.
	Timeout time.Duration     // Watchdog; 0 disables.
}

// Argv returns the program name followed by its arguments.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// Environ returns the extra environment as sorted KEY=VALUE pairs.
func (c Command) Environ() []string {
	if len(c.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// String renders the command as a copy-pasteable shell line, quoting
// arguments that contain shell metacharacters. Used for logs and dry runs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+len(c.Env)+1)
	for _, kv := range c.Environ() {
		parts = append(parts, Quote(kv))
	}
	for _, a := range c.Argv() {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

// Quote returns s quoted for a POSIX shell when needed.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=,+@%", r)
}
