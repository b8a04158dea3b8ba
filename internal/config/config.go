package config

import (
	"fmt"
	"os"
	"path/filepath"

	shellquote "github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

const (
	Dir        = ".sandpit"
	ConfigFile = "config.yaml"
	LogFile    = "sandpit.log"
	LockFile   = "sandpit.lock"
	WorkDir    = "work"
)

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

const (
	DefaultManifest = "package.json"
	DefaultInstall  = "npm install"
	DefaultDev      = "npm run dev"
	DefaultImage    = "node:20-bookworm"
	DefaultMaxLines = 100
)

type Config struct {
	Version  string   `yaml:"version"`
	Project  string   `yaml:"project"`
	Language string   `yaml:"language"`
	Runtime  Runtime  `yaml:"runtime"`
	Commands Commands `yaml:"commands"`
	Terminal Terminal `yaml:"terminal"`
	Ignore   []string `yaml:"ignore,omitempty"`
}

type Runtime struct {
	Backend string            `yaml:"backend"`
	Image   string            `yaml:"image,omitempty"`
	Ports   []int             `yaml:"ports"`
	WorkDir string            `yaml:"work_dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Mounts  []string          `yaml:"mounts,omitempty"`
}

type Commands struct {
	Manifest string `yaml:"manifest"`
	Install  string `yaml:"install"`
	Dev      string `yaml:"dev"`
}

type Terminal struct {
	MaxLines int `yaml:"max_lines"`
}

// WithDefaults returns a copy with every unset field filled in.
func (c Config) WithDefaults() Config {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Runtime.Backend == "" {
		c.Runtime.Backend = BackendLocal
	}
	if c.Runtime.Image == "" {
		c.Runtime.Image = DefaultImage
	}
	if c.Commands.Manifest == "" {
		c.Commands.Manifest = DefaultManifest
	}
	if c.Commands.Install == "" {
		c.Commands.Install = DefaultInstall
	}
	if c.Commands.Dev == "" {
		c.Commands.Dev = DefaultDev
	}
	if c.Terminal.MaxLines <= 0 {
		c.Terminal.MaxLines = DefaultMaxLines
	}
	return c
}

// Validate checks the fields that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Runtime.Backend {
	case BackendLocal, BackendDocker:
	default:
		return fmt.Errorf("unknown runtime backend %q (want %s or %s)", c.Runtime.Backend, BackendLocal, BackendDocker)
	}
	if _, err := c.InstallCommand(); err != nil {
		return err
	}
	if _, err := c.DevCommand(); err != nil {
		return err
	}
	return nil
}

// InstallCommand splits the install command line into argv.
func (c Config) InstallCommand() ([]string, error) {
	return splitCommand("install", c.Commands.Install)
}

// DevCommand splits the dev command line into argv.
func (c Config) DevCommand() ([]string, error) {
	return splitCommand("dev", c.Commands.Dev)
}

func splitCommand(name, line string) ([]string, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing %s command: %w", name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s command is empty", name)
	}
	return argv, nil
}

// WorkDirPath resolves the sandbox work directory for projectDir.
func (c Config) WorkDirPath(projectDir string) string {
	if c.Runtime.WorkDir == "" {
		return filepath.Join(projectDir, Dir, WorkDir)
	}
	if filepath.IsAbs(c.Runtime.WorkDir) {
		return c.Runtime.WorkDir
	}
	return filepath.Join(projectDir, c.Runtime.WorkDir)
}

// Load reads config from .sandpit/config.yaml relative to projectDir.
func Load(projectDir string) (*Config, error) {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes config to .sandpit/config.yaml relative to projectDir.
func Save(projectDir string, cfg *Config) error {
	dir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, ConfigFile)
	return os.WriteFile(path, data, 0o644)
}

// ConfigPath returns the path to the config directory.
func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, Dir)
}

// Exists returns true if .sandpit/config.yaml exists.
func Exists(projectDir string) bool {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	_, err := os.Stat(path)
	return err == nil
}
