// Package project loads the project configuration file that declares package directories
// and synchronization settings.
package project

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
)

const (
	// FileName is the project configuration file at the project root.
	FileName = "srcsync-project.json"

	// EnvPrefix prefixes environment overrides, e.g. SRCSYNC_WAIT=5m.
	EnvPrefix = "SRCSYNC"

	DefaultStateDir     = ".srcsync"
	DefaultAPIVersion   = "60.0"
	DefaultPollInterval = time.Second
	DefaultWait         = 33 * time.Minute
)

// PackageDirectory is one tracked package root.
type PackageDirectory struct {
	Path    string `mapstructure:"path" json:"path"`
	Default bool   `mapstructure:"default" json:"default"`
}

// Config is the decoded project configuration.
type Config struct {
	PackageDirectories []PackageDirectory `mapstructure:"packageDirectories"`
	StateDir           string             `mapstructure:"stateDir"`
	APIVersion         string             `mapstructure:"apiVersion"`
	PollInterval       time.Duration      `mapstructure:"pollInterval"`
	Wait               time.Duration      `mapstructure:"wait"`
	SparseCompose      bool               `mapstructure:"sparseCompose"`
}

// Project is a loaded configuration bound to its root directory.
type Project struct {
	root   string
	config Config
}

// Load reads <root>/srcsync-project.json with SRCSYNC_* environment overrides.
func Load(root string) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolve project root")
	}

	file := filepath.Join(absRoot, FileName)
	if _, err := os.Stat(file); err != nil {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).
			WithCause(err).
			WithHintf("create %s at the project root", FileName).
			WithContext("root", absRoot).
			Err()
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(file)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).WithCause(err).WithContext("file", FileName).Err()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).WithCause(err).WithContext("file", FileName).Err()
	}
	return New(absRoot, cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stateDir", DefaultStateDir)
	v.SetDefault("apiVersion", DefaultAPIVersion)
	v.SetDefault("pollInterval", DefaultPollInterval)
	v.SetDefault("wait", DefaultWait)
	v.SetDefault("sparseCompose", false)
}

// New validates cfg and binds it to root.
func New(root string, cfg Config) (*Project, error) {
	if len(cfg.PackageDirectories) == 0 {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).
			WithExplanationf("packageDirectories must list at least one package").
			Err()
	}

	defaults := 0
	seen := make(map[string]bool)
	for i, p := range cfg.PackageDirectories {
		clean := filepath.Clean(filepath.FromSlash(p.Path))
		if p.Path == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, errUtils.Build(errUtils.ErrInvalidProject).
				WithExplanationf("package path %q must be relative to the project root", p.Path).
				Err()
		}
		if seen[clean] {
			return nil, errUtils.Build(errUtils.ErrInvalidProject).
				WithExplanationf("package path %q declared twice", p.Path).
				Err()
		}
		seen[clean] = true
		cfg.PackageDirectories[i].Path = clean
		if p.Default {
			defaults++
		}
	}
	switch defaults {
	case 0:
		cfg.PackageDirectories[0].Default = true
	case 1:
	default:
		return nil, errUtils.Build(errUtils.ErrInvalidProject).
			WithExplanationf("exactly one package directory may be marked default, found %d", defaults).
			Err()
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}

	return &Project{root: root, config: cfg}, nil
}

// Root is the absolute project root.
func (p *Project) Root() string { return p.root }

// Config returns the validated configuration.
func (p *Project) Config() Config { return p.config }

// Packages returns package names (their relative paths) in declared order.
func (p *Project) Packages() []string {
	out := make([]string, 0, len(p.config.PackageDirectories))
	for _, d := range p.config.PackageDirectories {
		out = append(out, d.Path)
	}
	return out
}

// DefaultPackage is the package that receives brand-new components.
func (p *Project) DefaultPackage() string {
	for _, d := range p.config.PackageDirectories {
		if d.Default {
			return d.Path
		}
	}
	return p.config.PackageDirectories[0].Path
}

// PackagePath returns the absolute directory of a package.
func (p *Project) PackagePath(pkg string) string {
	return filepath.Join(p.root, pkg)
}

// PackageFor returns the package that contains path, or false if none does.
func (p *Project) PackageFor(path string) (string, bool) {
	return ContainingPackage(p.root, p.Packages(), path)
}

// ContainingPackage returns the package of packages (relative to root) that contains path.
// Nested package directories resolve to the innermost one.
func ContainingPackage(root string, packages []string, path string) (string, bool) {
	best := ""
	for _, pkg := range packages {
		rel, err := filepath.Rel(filepath.Join(root, pkg), path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(pkg) > len(best) {
			best = pkg
		}
	}
	return best, best != ""
}

// StatePath returns the per-remote state directory, <root>/<stateDir>/remotes/<remoteID>.
func (p *Project) StatePath(remoteID string) string {
	return filepath.Join(p.root, p.config.StateDir, "remotes", sanitize(remoteID))
}

func sanitize(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(id)
}
