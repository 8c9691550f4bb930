package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadAppliesDefaultsAndSortsByPath(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "b.json", `{"path":"b.bin","variant":"switch"}`)
	writeSidecar(t, dir, "a.json", `{"path":"a.bin","variant":"ue4","channels":1,"sampleRate":24000,"title":"Theme"}`)

	entries, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, filepath.Join(dir, "a.bin"), entries[0].Path)
	require.Equal(t, uint8(1), entries[0].Channels)
	require.Equal(t, uint32(24000), entries[0].SampleRate)
	require.Equal(t, "Theme", entries[0].Title)

	require.Equal(t, filepath.Join(dir, "b.bin"), entries[1].Path)
	require.Equal(t, uint8(2), entries[1].Channels, "missing channels defaults to stereo")
	require.Equal(t, uint32(48000), entries[1].SampleRate, "missing sample rate defaults to 48kHz")
	require.Equal(t, "b", entries[1].Title, "missing title falls back to the file stem")
}

func TestLoadRejectsUnknownVariant(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "bad.json", `{"path":"bad.bin","variant":"nonexistent"}`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "bad.json", `{"variant":"switch"}`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadErrorsOnEmptyDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
}

func TestVariantTag(t *testing.T) {
	e := Entry{Variant: "EA"}
	tag, err := e.VariantTag()
	require.NoError(t, err)
	require.Equal(t, "ea", tag.String())
}
