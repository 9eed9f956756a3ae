package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/observability"
)

// SettingsStore holds the editable settings and, when a path is configured,
// persists them as YAML after every update.
type SettingsStore struct {
	mu       sync.RWMutex
	path     string
	settings agentrun.Settings
}

// LoadSettings reads path if it exists, falling back to defaults. An empty
// path keeps settings in memory only.
func LoadSettings(path string) (*SettingsStore, error) {
	store := &SettingsStore{path: path, settings: agentrun.DefaultSettings()}
	if path == "" {
		return store, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &store.settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return store, nil
}

// Get returns one section as shown to clients. API keys are masked.
func (s *SettingsStore) Get(section agentrun.SettingsSection) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch section {
	case agentrun.SectionAgent:
		return s.settings.Agent
	case agentrun.SectionBrowser:
		return s.settings.Browser
	default:
		llm := s.settings.LLM
		llm.APIKey = observability.SanitizeAPIKey(llm.APIKey)
		return llm
	}
}

// Snapshot returns the unmasked settings.
func (s *SettingsStore) Snapshot() agentrun.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates raw as the given section and replaces it. An LLM update
// that echoes the masked key keeps the stored key.
func (s *SettingsStore) Update(section agentrun.SettingsSection, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	var err error
	switch section {
	case agentrun.SectionAgent:
		next.Agent, err = decodeSection[agentrun.AgentSettings](raw)
	case agentrun.SectionBrowser:
		next.Browser, err = decodeSection[agentrun.BrowserSettings](raw)
	case agentrun.SectionLLM:
		next.LLM, err = decodeSection[agentrun.LLMSettings](raw)
		if err == nil && next.LLM.APIKey != "" && next.LLM.APIKey == observability.SanitizeAPIKey(s.settings.LLM.APIKey) {
			next.LLM.APIKey = s.settings.LLM.APIKey
		}
	default:
		err = &validationError{err: fmt.Errorf("unknown settings section %q", section)}
	}
	if err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// decodeSection decodes and validates one section.
func decodeSection[T interface{ Validate() error }](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &validationError{err: fmt.Errorf("decode settings: %w", err)}
	}
	if err := v.Validate(); err != nil {
		return v, &validationError{err: err}
	}
	return v, nil
}

func (s *SettingsStore) persist(settings agentrun.Settings) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// validationError marks client input errors.
type validationError struct {
	err error
}

func (e *validationError) Error() string { return e.err.Error() }

func (e *validationError) Unwrap() error { return e.err }

func isValidation(err error) bool {
	var v *validationError
	return errors.As(err, &v)
}
