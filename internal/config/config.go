package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	VariantContacts = "contacts"
	VariantCredit   = "credit"

	DefaultPageSize = 50
	MaxPageSize     = 200
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Config models leadline.yml.
type Config struct {
	Funnel struct {
		Variant string  `yaml:"variant"`
		Stages  []Stage `yaml:"stages"`
	} `yaml:"funnel"`
	API struct {
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout"`
		PageSize int           `yaml:"page_size"`
	} `yaml:"api"`
	Search struct {
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"search"`
	Phone struct {
		DefaultRegion string `yaml:"default_region"`
	} `yaml:"phone"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

type Stage struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// StageIDs returns the ordered stage identifiers.
func (c *Config) StageIDs() []string {
	ids := make([]string, 0, len(c.Funnel.Stages))
	for _, s := range c.Funnel.Stages {
		ids = append(ids, s.ID)
	}
	return ids
}

// HasStage reports whether id is one of the configured stages.
func (c *Config) HasStage(id string) bool {
	for _, s := range c.Funnel.Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

// StageTitle returns the display title for a stage, or the id itself.
func (c *Config) StageTitle(id string) string {
	for _, s := range c.Funnel.Stages {
		if s.ID == id && s.Title != "" {
			return s.Title
		}
	}
	return id
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Funnel.Stages) == 0 {
		return fmt.Errorf("config.funnel.stages is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Funnel.Stages {
		if s.ID == "" {
			return fmt.Errorf("funnel stage %d has empty id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("funnel stage %s declared twice", s.ID)
		}
		seen[s.ID] = true
	}
	if c.API.PageSize < 0 {
		return fmt.Errorf("config.api.page_size must be positive")
	}
	if c.API.PageSize > MaxPageSize {
		return fmt.Errorf("config.api.page_size must be at most %d", MaxPageSize)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config.api.timeout must be positive")
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("config.search.debounce must not be negative")
	}
	return nil
}

// applyDefaults fills zero values left out of a partial file.
func (c *Config) applyDefaults() {
	if c.Funnel.Variant == "" {
		c.Funnel.Variant = VariantContacts
	}
	if len(c.Funnel.Stages) == 0 {
		c.Funnel.Stages = VariantStages(c.Funnel.Variant)
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = DefaultPageSize
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://127.0.0.1:3001/api"
	}
	if c.Search.Debounce == 0 {
		c.Search.Debounce = DefaultDebounce
	}
	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "BR"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:3001"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
}

// VariantStages returns the built-in stage list of a funnel variant.
func VariantStages(variant string) []Stage {
	switch variant {
	case VariantCredit:
		return []Stage{
			{ID: "new", Title: "New"},
			{ID: "analysis", Title: "Analysis"},
			{ID: "rejected", Title: "Rejected"},
			{ID: "approved", Title: "Approved"},
			{ID: "closed", Title: "Closed"},
		}
	default:
		return []Stage{
			{ID: "lead", Title: "New leads"},
			{ID: "in_progress", Title: "In progress"},
			{ID: "completed", Title: "Completed"},
		}
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "leadline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ll config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for a funnel variant.
func GenerateDefault(variant string) string {
	cfg := Default(variant)
	data, _ := yaml.Marshal(cfg)
	return string(data)
}

// Default returns the default Config struct for a funnel variant.
func Default(variant string) *Config {
	var cfg Config
	cfg.Funnel.Variant = variant
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
