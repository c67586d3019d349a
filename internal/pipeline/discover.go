package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/naming"
)

// Discover lists subject directories under cfg.BaseDir that match
// cfg.SubjectPattern, expands each into its sessions, and returns them
// sorted for a deterministic processing order.
//
// Sessions: with cfg.Session set, only subjects that have that session are
// returned. Otherwise every ses-* directory becomes its own unit of work; a
// subject without session directories is returned once with no session.
// cfg.Subjects, when non-empty, restricts the result to those IDs.
func Discover(cfg *config.Config) ([]naming.Subject, error) {
	entries, err := os.ReadDir(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	only := map[string]bool{}
	for _, id := range cfg.Subjects {
		only[id] = true
	}

	var subjects []naming.Subject
	for _, e := range entries {
		id := e.Name()
		if ok, _ := filepath.Match(cfg.SubjectPattern, id); !ok || !naming.IsSubjectLabel(id) {
			continue
		}
		if len(only) > 0 && !only[id] {
			continue
		}
		dir := filepath.Join(cfg.BaseDir, id)
		if !isDir(dir) {
			continue
		}

		if cfg.Session != "" {
			if isDir(filepath.Join(dir, cfg.Session)) {
				subjects = append(subjects, naming.Subject{ID: id, Session: cfg.Session})
			}
			continue
		}

		sessions, err := listSessions(dir)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			subjects = append(subjects, naming.Subject{ID: id})
			continue
		}
		for _, ses := range sessions {
			subjects = append(subjects, naming.Subject{ID: id, Session: ses})
		}
	}

	sort.SliceStable(subjects, func(i, j int) bool {
		return subjects[i].Key() < subjects[j].Key()
	})
	return subjects, nil
}

// Unmatched returns the requested subject IDs that Discover did not find.
func Unmatched(requested []string, found []naming.Subject) []string {
	have := map[string]bool{}
	for _, s := range found {
		have[s.ID] = true
	}
	var out []string
	for _, id := range requested {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}

func listSessions(subjectDir string) ([]string, error) {
	entries, err := os.ReadDir(subjectDir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var sessions []string
	for _, e := range entries {
		if naming.IsSessionLabel(e.Name()) && isDir(filepath.Join(subjectDir, e.Name())) {
			sessions = append(sessions, e.Name())
		}
	}
	return sessions, nil
}

// isDir follows symlinks, so linked subject directories are included.
func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
