package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/steer/errors"
	"gopkg.in/yaml.v3"
)

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Tool is the server tool that runs a shell command, Argument its
	// parameter holding the command text.
	Tool     string `yaml:"tool"`
	Argument string `yaml:"argument"`
}

type Snapshot struct {
	Backend string   `yaml:"backend"` // "none", "copy" or "git"
	Store   string   `yaml:"store"`
	Exclude []string `yaml:"exclude"`
}

type Environment struct {
	Type           string            `yaml:"type"` // "local" or "mcp"
	Cwd            string            `yaml:"cwd"`
	Env            map[string]string `yaml:"env"`
	TimeoutSeconds int               `yaml:"timeout"`
	Snapshot       Snapshot          `yaml:"snapshot"`
	MCP            MCPServer         `yaml:"mcp"`
}

type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

type Agent struct {
	SystemTemplate            string  `yaml:"system_template"`
	InstanceTemplate          string  `yaml:"instance_template"`
	ActionObservationTemplate string  `yaml:"action_observation_template"`
	FormatErrorTemplate       string  `yaml:"format_error_template"`
	TimeoutTemplate           string  `yaml:"timeout_template"`
	StepLimit                 int     `yaml:"step_limit"`
	CostLimit                 float64 `yaml:"cost_limit"`
}

type Interactive struct {
	Mode             string   `yaml:"mode"` // "human", "confirm" or "yolo"
	WhitelistActions []string `yaml:"whitelist_actions"`
	ConfirmExit      bool     `yaml:"confirm_exit"`
}

type Config struct {
	LLMClient   string      `yaml:"llm"`
	Model       string      `yaml:"model"`
	Pricing     Pricing     `yaml:"pricing"`
	Agent       Agent       `yaml:"agent"`
	Interactive Interactive `yaml:"interactive"`
	Environment Environment `yaml:"environment"`
	SessionDir  string      `yaml:"session_dir"`
	HistoryFile string      `yaml:"history_file"`
	LogLevel    string      `yaml:"log_level"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	cfg := &Config{
		LLMClient: "mock",
		Agent: Agent{
			SystemTemplate:            DefaultSystemTemplate,
			InstanceTemplate:          DefaultInstanceTemplate,
			ActionObservationTemplate: DefaultActionObservationTemplate,
			FormatErrorTemplate:       DefaultFormatErrorTemplate,
			TimeoutTemplate:           DefaultTimeoutTemplate,
			CostLimit:                 3.0,
		},
		Interactive: Interactive{
			Mode:        "confirm",
			ConfirmExit: true,
		},
		Environment: Environment{
			Type:           "local",
			TimeoutSeconds: 30,
			Snapshot: Snapshot{
				Backend: "git",
				Exclude: []string{".git", ".git/**", ".steer", ".steer/**"},
			},
			MCP: MCPServer{Tool: "bash", Argument: "command"},
		},
		SessionDir: filepath.Join(".steer", "sessions"),
		LogLevel:   "info",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.HistoryFile = filepath.Join(home, ".steer", "interactive_history.txt")
	}
	if cache, err := os.UserCacheDir(); err == nil {
		cfg.Environment.Snapshot.Store = filepath.Join(cache, "steer", "snapshots")
	}
	return cfg
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. A non-empty explicit
// path is applied last.
func LoadConfig(explicit string) (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".steer", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".steer", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if explicit != "" {
		if err := loadFromFile(explicit, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", explicit)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites fields present in the YAML, so later files
	// override earlier ones field by field. Lists are replaced, not merged.
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	switch c.Interactive.Mode {
	case "human", "confirm", "yolo":
	default:
		return errors.New("invalid mode %q, must be 'human', 'confirm' or 'yolo'", c.Interactive.Mode)
	}
	switch c.Environment.Type {
	case "local", "mcp":
	default:
		return errors.New("invalid environment type %q, must be 'local' or 'mcp'", c.Environment.Type)
	}
	switch c.Environment.Snapshot.Backend {
	case "none", "copy", "git":
	default:
		return errors.New("invalid snapshot backend %q, must be 'none', 'copy' or 'git'", c.Environment.Snapshot.Backend)
	}
	if c.Agent.StepLimit < 0 || c.Agent.CostLimit < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}
