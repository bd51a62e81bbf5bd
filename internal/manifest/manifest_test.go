package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	xhr, ok := Preset("XMLHttpRequest")
	require.True(t, ok)
	assert.Len(t, xhr.Attributes, 10)
	assert.Contains(t, xhr.Methods, "getAllResponseHeaders")
	assert.Contains(t, xhr.EventHandlers, "onreadystatechange")

	audio, ok := Preset("Audio")
	require.True(t, ok)
	assert.Equal(t, []string{"src", "loop", "volume", "preload"}, audio.Attributes)
	assert.Equal(t, []string{"play", "pause", "load", "canPlayType"}, audio.Methods)

	_, ok = Preset("Video")
	assert.False(t, ok)

	assert.Equal(t, []string{"XMLHttpRequest", "Audio"}, Presets().Names())
}

func TestPresetsReturnsCopy(t *testing.T) {
	m := Presets()
	m.Types[0].Name = "Mutated"

	_, ok := Preset("XMLHttpRequest")
	assert.True(t, ok)
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"types.yaml": `
types:
  - name: Req
    attributes: [status]
    methods: [send]
    event_handlers: [onDone]
`,
		"types.toml": `
[[types]]
name = "Req"
attributes = ["status"]
methods = ["send"]
event_handlers = ["onDone"]
`,
		"types.json": `{"types":[{"name":"Req","attributes":["status"],"methods":["send"],"event_handlers":["onDone"]}]}`,
	}

	want := TypeSpec{
		Name:          "Req",
		Attributes:    []string{"status"},
		Methods:       []string{"send"},
		EventHandlers: []string{"onDone"},
	}

	dir := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			m, err := Load(path)
			require.NoError(t, err)
			require.Len(t, m.Types, 1)
			assert.Equal(t, want, m.Types[0])
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "types.ini"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("types:\n  - name: A\n  - name: A\n"), FormatYAML)
	assert.ErrorContains(t, err, "declared twice")

	_, err = Parse([]byte(`{"types":[{"attributes":["x"]}]}`), FormatJSON)
	assert.ErrorContains(t, err, "no name")

	_, err = Parse([]byte("types = ["), FormatTOML)
	assert.Error(t, err)
}
