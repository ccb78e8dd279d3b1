package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semguard.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semguard"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader builds a Config from defaults, the user config and the project
// config, in that order of increasing precedence.
type Loader struct {
	logger *slog.Logger

	// projectPath overrides the search for semguard.yaml
	projectPath string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// WithProjectConfig makes Load read the project config from path instead
// of searching for semguard.yaml. A missing file is then an error.
func (l *Loader) WithProjectConfig(path string) *Loader {
	l.projectPath = path
	return l
}

// layer is one config file in the precedence chain.
type layer struct {
	kind     string
	path     string
	required bool
}

func (l *Loader) layers() []layer {
	out := []layer{{kind: "user", path: userConfigPath()}}
	switch {
	case l.projectPath != "":
		out = append(out, layer{kind: "project", path: l.projectPath, required: true})
	default:
		if found := findUpward(ProjectConfigFile); found != "" {
			out = append(out, layer{kind: "project", path: found})
		}
	}
	return out
}

// Load merges every layer over DefaultConfig and validates the result.
//
// Relative repo, registry and cache paths in the project config are taken
// relative to that file. Without a project config they are taken relative
// to the repository root, which falls back to the git top level and then
// the working directory.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	var projectDir string
	for _, ly := range l.layers() {
		if ly.path == "" {
			continue
		}
		next, err := LoadFromFile(ly.path)
		if err != nil {
			if ly.required {
				return nil, err
			}
			if !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("Skipping unreadable config", "layer", ly.kind, "path", ly.path, "error", err)
			}
			continue
		}
		cfg.Merge(next)
		l.logger.Debug("Merged config", "layer", ly.kind, "path", ly.path)
		if ly.kind == "project" {
			projectDir = filepath.Dir(ly.path)
		}
	}
	if projectDir == "" {
		l.logger.Debug("No project config found")
	}

	if err := cfg.resolvePaths(projectDir, l.fallbackRoot); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fallbackRoot is the repository root used when no config names one.
func (l *Loader) fallbackRoot() string {
	if root := gitTopLevel(); root != "" {
		l.logger.Debug("Using git top level as repo root", "path", root)
		return root
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	l.logger.Debug("Using working directory as repo root", "path", cwd)
	return cwd
}

// resolvePaths anchors the repo, registry and sqlite cache paths. The repo
// root ends up absolute so file paths can be made relative to it.
func (c *Config) resolvePaths(projectDir string, fallbackRoot func() string) error {
	repo := anchor(projectDir, c.Repo.Path)
	if repo == "" {
		repo = fallbackRoot()
	}
	if repo != "" {
		abs, err := filepath.Abs(repo)
		if err != nil {
			return fmt.Errorf("repo.path: %w", err)
		}
		repo = abs
	}
	c.Repo.Path = repo

	base := projectDir
	if base == "" {
		base = repo
	}
	c.Registry.Path = anchor(base, c.Registry.Path)
	if c.Cache.Backend == CacheSQLite {
		c.Cache.Path = anchor(base, c.Cache.Path)
	}
	return nil
}

func anchor(base, p string) string {
	if p == "" || base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// EnsureUserConfig writes the default user config unless one exists.
func (l *Loader) EnsureUserConfig() error {
	path := userConfigPath()
	if path == "" {
		return fmt.Errorf("user config: no home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	l.logger.Info("Created default user config", "path", path)
	return nil
}

func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findUpward returns the nearest file called name in the working directory
// or one of its parents.
func findUpward(name string) string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func gitTopLevel() string {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
