package agentrun

import (
	"fmt"
	"strings"
)

// SettingsSection names one of the editable settings groups.
type SettingsSection string

const (
	SectionAgent   SettingsSection = "agent"
	SectionBrowser SettingsSection = "browser"
	SectionLLM     SettingsSection = "llm"
)

// ParseSettingsSection validates a section name.
func ParseSettingsSection(raw string) (SettingsSection, error) {
	switch s := SettingsSection(strings.ToLower(strings.TrimSpace(raw))); s {
	case SectionAgent, SectionBrowser, SectionLLM:
		return s, nil
	default:
		return "", fmt.Errorf("unknown settings section %q (want agent, browser or llm)", raw)
	}
}

// AgentSettings configures the agent loop.
type AgentSettings struct {
	AgentType         string `json:"agentType" yaml:"agentType"`
	MaxSteps          int    `json:"maxSteps" yaml:"maxSteps"`
	UseVision         bool   `json:"useVision" yaml:"useVision"`
	MaxActionsPerStep int    `json:"maxActionsPerStep" yaml:"maxActionsPerStep"`
	ToolCallInContent bool   `json:"toolCallInContent" yaml:"toolCallInContent"`
}

// Validate rejects values the agent cannot run with.
func (s AgentSettings) Validate() error {
	if strings.TrimSpace(s.AgentType) == "" {
		return fmt.Errorf("agentType is required")
	}
	if s.MaxSteps <= 0 {
		return fmt.Errorf("maxSteps must be positive")
	}
	if s.MaxActionsPerStep <= 0 {
		return fmt.Errorf("maxActionsPerStep must be positive")
	}
	return nil
}

// BrowserSettings configures the automated browser.
type BrowserSettings struct {
	Headless          bool   `json:"headless" yaml:"headless"`
	DisableSecurity   bool   `json:"disableSecurity" yaml:"disableSecurity"`
	WindowWidth       int    `json:"windowWidth" yaml:"windowWidth"`
	WindowHeight      int    `json:"windowHeight" yaml:"windowHeight"`
	SaveRecordingPath string `json:"saveRecordingPath,omitempty" yaml:"saveRecordingPath,omitempty"`
	SaveTracePath     string `json:"saveTracePath,omitempty" yaml:"saveTracePath,omitempty"`
}

// Validate rejects impossible window sizes.
func (s BrowserSettings) Validate() error {
	if s.WindowWidth <= 0 || s.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", s.WindowWidth, s.WindowHeight)
	}
	return nil
}

// LLMSettings configures the model provider.
type LLMSettings struct {
	Provider    string  `json:"provider" yaml:"provider"`
	ModelName   string  `json:"modelName" yaml:"modelName"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	BaseURL     string  `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
}

// Validate rejects missing provider/model and out-of-range temperatures.
func (s LLMSettings) Validate() error {
	if strings.TrimSpace(s.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(s.ModelName) == "" {
		return fmt.Errorf("modelName is required")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", s.Temperature)
	}
	return nil
}

// Settings groups every section.
type Settings struct {
	Agent   AgentSettings   `json:"agent" yaml:"agent"`
	Browser BrowserSettings `json:"browser" yaml:"browser"`
	LLM     LLMSettings     `json:"llm" yaml:"llm"`
}

// DefaultSettings mirrors the defaults a fresh console starts with.
func DefaultSettings() Settings {
	return Settings{
		Agent: AgentSettings{
			AgentType:         "custom",
			MaxSteps:          100,
			UseVision:         true,
			MaxActionsPerStep: 10,
			ToolCallInContent: true,
		},
		Browser: BrowserSettings{
			Headless:          false,
			DisableSecurity:   true,
			WindowWidth:       1280,
			WindowHeight:      1100,
			SaveRecordingPath: "./tmp/recordings",
			SaveTracePath:     "./tmp/traces",
		},
		LLM: LLMSettings{
			Provider:    "openai",
			ModelName:   "gpt-4o",
			Temperature: 1.0,
		},
	}
}
