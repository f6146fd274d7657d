package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferences_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "app")

	p := LoadPreferences(dir, testLogger())
	assert.Empty(t, p.PreferredTrainer())

	p.SetPreferredTrainer("KICKR CORE 1234")
	_, err := os.Stat(filepath.Join(dir, PreferencesFileName))
	require.NoError(t, err)

	again := LoadPreferences(dir, testLogger())
	assert.Equal(t, "KICKR CORE 1234", again.PreferredTrainer())
}

func TestPreferences_BrokenFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PreferencesFileName), []byte("{not json"), 0644))

	p := LoadPreferences(dir, testLogger())
	assert.Empty(t, p.PreferredTrainer())
}
