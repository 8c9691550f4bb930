// Package catalog loads the playlist of game audio tracks the station
// plays back. Each entry names a container file on disk, which
// packaging framing it uses, and where inside that file the Opus
// stream lives — the same metadata a vgmstream .txtp sidecar would
// carry, just as JSON.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexusradio/gameopus/pkg/transmux/variant"
)

// Entry describes one playable track: where its bytes live, how to
// frame them, and the metadata surfaced to listeners via /api/status.
type Entry struct {
	Path          string `json:"path"`
	Variant       string `json:"variant"`
	Channels      uint8  `json:"channels"`
	SampleRate    uint32 `json:"sampleRate"`
	PreSkip       uint16 `json:"preSkip"`
	PhysicalStart int64  `json:"physicalStart"`
	PhysicalSize  int64  `json:"physicalSize"`

	Title   string   `json:"title"`
	Artists []string `json:"artists"`
}

// VariantTag parses the entry's Variant string into a variant.Tag.
func (e Entry) VariantTag() (variant.Tag, error) {
	return variant.ParseTag(strings.ToLower(e.Variant))
}

// Load reads every "*.json" sidecar in dir and returns the tracks in a
// stable, sorted-by-path order so playback order is reproducible
// across restarts. Each sidecar's Path, if relative, is resolved
// against dir.
func Load(dir string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("catalog: glob %q: %w", dir, err)
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, sidecar := range matches {
		entry, err := loadSidecar(sidecar, dir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no track sidecars found in %q", dir)
	}

	return entries, nil
}

func loadSidecar(sidecar, dir string) (Entry, error) {
	raw, err := os.ReadFile(sidecar)
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: read %q: %w", sidecar, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("catalog: parse %q: %w", sidecar, err)
	}

	if entry.Path == "" {
		return Entry{}, fmt.Errorf("catalog: %q is missing \"path\"", sidecar)
	}
	if !filepath.IsAbs(entry.Path) {
		entry.Path = filepath.Join(dir, entry.Path)
	}
	if entry.Channels == 0 {
		entry.Channels = 2
	}
	if entry.SampleRate == 0 {
		entry.SampleRate = 48000
	}
	if entry.Title == "" {
		entry.Title = strings.TrimSuffix(filepath.Base(entry.Path), filepath.Ext(entry.Path))
	}
	if _, err := entry.VariantTag(); err != nil {
		return Entry{}, fmt.Errorf("catalog: %q: %w", sidecar, err)
	}

	return entry, nil
}
