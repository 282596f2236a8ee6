package pdfagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors for config operations.
var (
	ErrConfigParse = errors.New("failed to parse config")
)

// Config holds the service configuration loaded from a JSON document.
// Every field has a documented default; loading overlays only the keys
// explicitly present in the file, so a partial config never loses the
// defaults for the keys it omits.
type Config struct {
	Email  EmailConfig  `json:"email"`
	OpenAI OpenAIConfig `json:"openai"`
	Pandoc PandocConfig `json:"pandoc"`
	Output OutputConfig `json:"output"`
}

// EmailConfig defines the SMTP delivery settings.
type EmailConfig struct {
	SMTPServer string `json:"smtp_server"` // default: smtp.gmail.com
	SMTPPort   int    `json:"smtp_port"`   // default: 587 (STARTTLS)
	Username   string `json:"username"`
	Password   string `json:"password"`
	FromEmail  string `json:"from_email"` // empty = use Username
	ToEmail    string `json:"to_email"`   // default recipient
}

// OpenAIConfig is reserved for future AI-assisted formatting steps.
// The conversion pipeline does not read it.
type OpenAIConfig struct {
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`       // default: gpt-4o-mini
	Temperature float64 `json:"temperature"` // default: 0.3
	MaxTokens   int     `json:"max_tokens"`  // default: 4000
}

// PandocConfig defines the external converter invocation.
type PandocConfig struct {
	Engine   string   `json:"engine"`   // PDF engine, default: xelatex
	Template string   `json:"template"` // LaTeX template path; applied only when the file exists
	Options  []string `json:"options"`  // extra flags appended after the IEEE set
}

// OutputConfig defines where generated PDFs land.
type OutputConfig struct {
	Directory string `json:"directory"` // default: output
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   4000,
		},
		Pandoc: PandocConfig{
			Engine:   "xelatex",
			Template: "ieee_template_proper.tex",
			Options:  []string{"--toc"},
		},
		Output: OutputConfig{
			Directory: "output",
		},
	}
}

// LoadConfig reads the JSON config at path, overlaying present keys onto
// the defaults. A missing file is created with the defaults and a warning
// is left to the caller (the returned bool reports whether the file was
// created).
func LoadConfig(path string) (*Config, bool, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 -- config path is operator-provided
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("reading config file: %w", err)
		}
		if err := writeDefaultConfig(path, cfg); err != nil {
			return nil, false, err
		}
		return cfg, true, nil
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return cfg, false, nil
}

// writeDefaultConfig materializes the defaults so operators have a
// concrete file to fill in.
func writeDefaultConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
