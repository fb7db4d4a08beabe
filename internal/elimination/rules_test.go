package elimination

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_EmptyPathReturnsDefaults(t *testing.T) {
	r, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), r)
}

func TestLoadRules_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
elimination:
  boost_by: 15
  headings:
    "8310":
      requires: [plaque]
      note: custom plaques
    "6307":
      boosts: [tarpaulin]
  chapters:
    "73":
      requires_material: [steel]
`), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 15.0, r.BoostBy)
	assert.Equal(t, []string{"plaque"}, r.Headings["8310"].Requires)
	assert.Equal(t, []string{"tarpaulin"}, r.Headings["6307"].Boosts)
	assert.Equal(t, []string{"steel"}, r.Chapters["73"].RequiresMaterial)
	assert.Contains(t, r.Headings, "7310", "defaults not in the file survive")
	assert.True(t, r.Sections["XVI"].FunctionBased)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("elimination: [unclosed"), 0o644))
	_, err = LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rules")
}
