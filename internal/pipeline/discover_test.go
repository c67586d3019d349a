package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/naming"
)

func discoverCfg(base string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseDir = base
	return &cfg
}

func keys(subjects []naming.Subject) []string {
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = s.Key()
	}
	return out
}

func TestDiscover_SessionsAndSorting(t *testing.T) {
	base := t.TempDir()
	mkdir(t, filepath.Join(base, "sub-02", "ses-M00"))
	mkdir(t, filepath.Join(base, "sub-01", "ses-M12"))
	mkdir(t, filepath.Join(base, "sub-01", "ses-M00"))
	mkdir(t, filepath.Join(base, "sub-03", "anat"))
	mkdir(t, filepath.Join(base, "logs"))
	mkdir(t, filepath.Join(base, "derivatives"))
	touch(t, filepath.Join(base, "sub-04"))
	touch(t, filepath.Join(base, "sub-01", "ses-M24"))

	subjects, err := Discover(discoverCfg(base))
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-M00", "sub-01_ses-M12", "sub-02_ses-M00", "sub-03"}, keys(subjects))
	assert.Equal(t, "", subjects[3].Session)
}

func TestDiscover_SessionFilter(t *testing.T) {
	base := t.TempDir()
	mkdir(t, filepath.Join(base, "sub-01", "ses-M00"))
	mkdir(t, filepath.Join(base, "sub-01", "ses-M12"))
	mkdir(t, filepath.Join(base, "sub-02", "ses-M12"))

	cfg := discoverCfg(base)
	cfg.Session = "ses-M00"
	subjects, err := Discover(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-M00"}, keys(subjects))
}

func TestDiscover_SubjectsAndPattern(t *testing.T) {
	base := t.TempDir()
	for _, id := range []string{"sub-002S0413", "sub-002S1155", "sub-941S6094", "sub-01bad.bak"} {
		mkdir(t, filepath.Join(base, id))
	}

	cfg := discoverCfg(base)
	cfg.Subjects = []string{"sub-941S6094", "sub-002S0413"}
	subjects, err := Discover(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-002S0413", "sub-941S6094"}, keys(subjects))

	cfg = discoverCfg(base)
	cfg.SubjectPattern = "sub-002*"
	subjects, err = Discover(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-002S0413", "sub-002S1155"}, keys(subjects))
}

func TestDiscover_MissingBase(t *testing.T) {
	_, err := Discover(discoverCfg(filepath.Join(t.TempDir(), "nope")))
	assert.Error(t, err)
}

func TestUnmatched(t *testing.T) {
	found := []naming.Subject{{ID: "sub-01", Session: "ses-M00"}, {ID: "sub-01", Session: "ses-M12"}}
	assert.Equal(t, []string{"sub-09"}, Unmatched([]string{"sub-01", "sub-09"}, found))
	assert.Empty(t, Unmatched(nil, found))
}
