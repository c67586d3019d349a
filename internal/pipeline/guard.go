package pipeline

import (
	"os"
)

// ShouldRun reports whether a step has to execute. It returns false only
// when every output exists and is non-empty: a regular file with size > 0,
// or a directory with at least one entry. It has no side effects.
func ShouldRun(outputs []string) bool {
	if len(outputs) == 0 {
		return true
	}
	for _, p := range outputs {
		if !produced(p) {
			return true
		}
	}
	return false
}

// missing returns the paths that are not produced and not in planned.
func missing(paths []string, planned map[string]bool) []string {
	var out []string
	for _, p := range paths {
		if planned[p] || produced(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func produced(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		defer f.Close()
		names, _ := f.Readdirnames(1)
		return len(names) > 0
	}
	return fi.Mode().IsRegular() && fi.Size() > 0
}

// sizeOf sums the size of regular files among paths. Directories count as 0.
func sizeOf(paths []string) int64 {
	var n int64
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			n += fi.Size()
		}
	}
	return n
}
