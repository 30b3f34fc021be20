package entitle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const SettingsFileName = "settings.json"

// Settings is a small file-backed key/value store for flags that must
// survive restarts independently of the entity store. The only key today
// is the full-version unlock flag.
type Settings struct {
	mu   sync.Mutex
	path string
	data settingsData
}

type settingsData struct {
	FullVersionUnlocked bool `json:"full_version_unlocked"`
}

// OpenSettings loads settings from dir/settings.json, treating a missing
// file as empty defaults.
func OpenSettings(dir string) (*Settings, error) {
	s := &Settings{path: filepath.Join(dir, SettingsFileName)}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

func (s *Settings) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FullVersionUnlocked
}

// SetUnlocked persists the flag. Writes go through a temp file in the
// same directory so a crash never leaves a truncated settings file.
func (s *Settings) SetUnlocked(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.data.FullVersionUnlocked
	s.data.FullVersionUnlocked = v
	if err := s.saveLocked(); err != nil {
		s.data.FullVersionUnlocked = prev
		return err
	}
	return nil
}

func (s *Settings) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	raw = append(raw, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}
