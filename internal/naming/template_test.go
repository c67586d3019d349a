package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectVars(t *testing.T) {
	v := SubjectVars("/data", Subject{ID: "sub-01", Session: "ses-M00"})
	assert.Equal(t, "/data", v[VarBase])
	assert.Equal(t, "sub-01", v[VarSub])
	assert.Equal(t, "ses-M00", v[VarSes])
	assert.Equal(t, "01", v[VarLabel])
	assert.Equal(t, "/data/sub-01/ses-M00", v[VarSubdir])
	assert.Equal(t, "sub-01_ses-M00", v[VarPrefix])
	_, hasThreads := v[VarThreads]
	assert.False(t, hasThreads)
}

func TestExpand(t *testing.T) {
	vars := Vars{"subdir": "/data/sub-01/ses-M00", "prefix": "sub-01_ses-M00", "threads": "4"}
	tests := []struct {
		tmpl string
		want string
	}{
		{"{subdir}/dwi/{prefix}_dir-AP_dwi.nii.gz", "/data/sub-01/ses-M00/dwi/sub-01_ses-M00_dir-AP_dwi.nii.gz"},
		{"-nthreads", "-nthreads"},
		{"{threads}", "4"},
		{"0,1", "0,1"},
		{"{}", "{}"},
		{"{1,2}", "{1,2}"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := Expand(tt.tmpl, vars)
		require.NoError(t, err, tt.tmpl)
		assert.Equal(t, tt.want, got, tt.tmpl)
	}
}

func TestExpand_Unknown(t *testing.T) {
	_, err := Expand("{subdir}/{missing}", Vars{"subdir": "/x"})
	assert.ErrorIs(t, err, ErrUnknownPlaceholder)
	assert.ErrorContains(t, err, "{missing}")

	_, err = ExpandAll([]string{"ok", "{nope}"}, Vars{})
	assert.ErrorIs(t, err, ErrUnknownPlaceholder)

	out, err := ExpandAll(nil, Vars{})
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"raw", "threads"}, Placeholders("{raw}.mif {raw}_den.mif -nthreads {threads}"))
	assert.Empty(t, Placeholders("no placeholders {}"))
}

func TestBuiltinNames(t *testing.T) {
	assert.Equal(t, []string{"base", "label", "prefix", "ses", "sub", "subdir", "threads"}, BuiltinNames())
}
