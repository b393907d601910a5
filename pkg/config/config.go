package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Detection modes for deciding whether an author already bumped a version.
const (
	DetectionStructured = "structured"
	DetectionMarker     = "marker"
)

// VCS backends.
const (
	BackendAuto  = "auto"
	BackendGoGit = "gogit"
	BackendCLI   = "cli"
)

// ProjectConfigName is the optional per-repository config file.
const ProjectConfigName = ".tmplcat.yaml"

// Config holds all configuration for tmplcat
type Config struct {
	Layout    LayoutConfig    `mapstructure:"layout"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Bump      BumpConfig      `mapstructure:"bump"`
	Validate  ValidateConfig  `mapstructure:"validate"`
	VCS       VCSConfig       `mapstructure:"vcs"`
}

// LayoutConfig names the files that make up the catalog.
type LayoutConfig struct {
	ManifestFile string `mapstructure:"manifest_file"`
	IndexFile    string `mapstructure:"index_file"`
}

// TemplatesConfig controls template directory discovery.
type TemplatesConfig struct {
	// Exclude holds doublestar patterns matched against top-level directory names.
	Exclude []string `mapstructure:"exclude"`

	// RespectIgnoreFiles skips directories matched by .gitignore or .tmplcatignore.
	RespectIgnoreFiles bool `mapstructure:"respect_ignore_files"`
}

// BumpConfig controls the version bump decision.
type BumpConfig struct {
	Detection string `mapstructure:"detection"`
}

// ValidateConfig controls which changed files are syntax-checked.
type ValidateConfig struct {
	Patterns []string `mapstructure:"patterns"`
}

// VCSConfig selects the history backend.
type VCSConfig struct {
	Backend string `mapstructure:"backend"`
}

var defaultConfig = Config{
	Layout: LayoutConfig{
		ManifestFile: "manifest.yaml",
		IndexFile:    "info.yaml",
	},
	Templates: TemplatesConfig{
		Exclude:            []string{},
		RespectIgnoreFiles: true,
	},
	Bump: BumpConfig{
		Detection: DetectionStructured,
	},
	Validate: ValidateConfig{
		Patterns: []string{"*.yaml", "*.yml", "**/*.yaml", "**/*.yml"},
	},
	VCS: VCSConfig{
		Backend: BackendAuto,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Templates.Exclude = append([]string(nil), defaultConfig.Templates.Exclude...)
	c.Validate.Patterns = append([]string(nil), defaultConfig.Validate.Patterns...)
	return &c
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// Root is the repository root searched for .tmplcat.yaml.
	Root string
	// File is an explicit config path; when set it must exist.
	File string
}

// Load loads configuration from defaults, an optional config file and
// TMPLCAT_* environment variables, in increasing priority.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("layout.manifest_file", defaultConfig.Layout.ManifestFile)
	v.SetDefault("layout.index_file", defaultConfig.Layout.IndexFile)
	v.SetDefault("templates.exclude", defaultConfig.Templates.Exclude)
	v.SetDefault("templates.respect_ignore_files", defaultConfig.Templates.RespectIgnoreFiles)
	v.SetDefault("bump.detection", defaultConfig.Bump.Detection)
	v.SetDefault("validate.patterns", defaultConfig.Validate.Patterns)
	v.SetDefault("vcs.backend", defaultConfig.VCS.Backend)

	v.SetEnvPrefix("TMPLCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := opts.File
	if configPath == "" {
		root := opts.Root
		if root == "" {
			root = "."
		}
		candidate := filepath.Join(root, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath) // #nosec G304 -- path chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := ValidateConfigDocument(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that the schema cannot express, and values that
// arrive through the environment without passing the schema at all.
func (c *Config) Validate() error {
	var errs []error

	for name, file := range map[string]string{
		"layout.manifest_file": c.Layout.ManifestFile,
		"layout.index_file":    c.Layout.IndexFile,
	} {
		if strings.TrimSpace(file) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		} else if strings.ContainsAny(file, `/\`) {
			errs = append(errs, fmt.Errorf("%s must be a plain file name, got %q", name, file))
		}
	}

	switch c.Bump.Detection {
	case DetectionStructured, DetectionMarker:
	default:
		errs = append(errs, fmt.Errorf("bump.detection must be %q or %q, got %q", DetectionStructured, DetectionMarker, c.Bump.Detection))
	}

	switch c.VCS.Backend {
	case BackendAuto, BackendGoGit, BackendCLI:
	default:
		errs = append(errs, fmt.Errorf("vcs.backend must be one of auto, gogit, cli, got %q", c.VCS.Backend))
	}

	if len(c.Validate.Patterns) == 0 {
		errs = append(errs, errors.New("validate.patterns must not be empty"))
	}
	for _, pat := range append(append([]string(nil), c.Validate.Patterns...), c.Templates.Exclude...) {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("invalid glob pattern %q", pat))
		}
	}

	return errors.Join(errs...)
}
