package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
)

// DefaultTTL is how long a loaded configuration stays fresh before the
// file is consulted again.
const DefaultTTL = 30 * time.Second

// Loader reads the workflow configuration with a TTL cache keyed by
// working directory. Concurrent reloads are coalesced; a changed
// working directory invalidates the cache. Load never fails: parse
// problems are logged and the built-in defaults returned.
type Loader struct {
	mu     sync.RWMutex
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	// workDir resolves the directory holding .taskorchestrator/.
	// Defaults to os.Getwd so tests that chdir see fresh config.
	workDir func() (string, error)

	cached    *Config
	cachedDir string
	loadedAt  time.Time
}

// NewLoader creates a loader with the default TTL.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		ttl:     DefaultTTL,
		logger:  logger,
		workDir: os.Getwd,
	}
}

// SetWorkDir pins the loader to a fixed working directory.
func (l *Loader) SetWorkDir(dir string) {
	l.mu.Lock()
	l.workDir = func() (string, error) { return dir, nil }
	l.cached = nil
	l.mu.Unlock()
}

// SetTTL overrides the cache TTL.
func (l *Loader) SetTTL(ttl time.Duration) {
	l.mu.Lock()
	l.ttl = ttl
	l.mu.Unlock()
}

// ConfigPath returns the expected config file path for the current
// working directory.
func (l *Loader) ConfigPath() (string, error) {
	l.mu.RLock()
	resolve := l.workDir
	l.mu.RUnlock()
	dir, err := resolve()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigDir, ConfigFileName), nil
}

// Load returns the current workflow configuration. The returned value
// is a shared snapshot; callers must not mutate it.
func (l *Loader) Load() *Config {
	dir, err := l.resolveDir()
	if err != nil {
		l.logger.Warn("cannot resolve working directory, using default config", "error", err)
		return Default()
	}

	// Fast path: cache valid for this directory
	l.mu.RLock()
	if l.cached != nil && l.cachedDir == dir && time.Since(l.loadedAt) < l.ttl {
		cfg := l.cached
		l.mu.RUnlock()
		return cfg
	}
	l.mu.RUnlock()

	// Slow path: load via singleflight to coalesce concurrent reloads
	result, _, _ := l.group.Do("load:"+dir, func() (any, error) {
		// Double-check cache after acquiring singleflight slot
		l.mu.RLock()
		if l.cached != nil && l.cachedDir == dir && time.Since(l.loadedAt) < l.ttl {
			cfg := l.cached
			l.mu.RUnlock()
			return cfg, nil
		}
		l.mu.RUnlock()

		cfg := l.loadFromDir(dir)

		l.mu.Lock()
		l.cached = cfg
		l.cachedDir = dir
		l.loadedAt = time.Now()
		l.mu.Unlock()

		return cfg, nil
	})

	return result.(*Config)
}

// Invalidate clears the cache, forcing the next Load to re-read.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.loadedAt = time.Time{}
	l.mu.Unlock()
}

func (l *Loader) resolveDir() (string, error) {
	l.mu.RLock()
	resolve := l.workDir
	l.mu.RUnlock()
	return resolve()
}

// loadFromDir reads and parses the config file under dir. Any failure
// falls back to the built-in defaults.
func (l *Loader) loadFromDir(dir string) *Config {
	path := filepath.Join(dir, ConfigDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("cannot read workflow config, using defaults", "path", path, "error", err)
		} else {
			l.logger.Debug("no workflow config file, using defaults", "path", path)
		}
		return Default()
	}

	cfg, err := Parse(data)
	if err != nil {
		l.logger.Warn("cannot parse workflow config, using defaults", "path", path, "error", err)
		return Default()
	}
	l.logger.Debug("workflow config loaded", "path", path)
	return cfg
}

// fileConfig mirrors the on-disk shape. Pointer fields distinguish
// "absent" from zero so absent keys keep their documented defaults.
type fileConfig struct {
	StatusProgression struct {
		Projects *Progression `yaml:"projects"`
		Features *Progression `yaml:"features"`
		Tasks    *Progression `yaml:"tasks"`
	} `yaml:"status_progression"`
	StatusValidation *struct {
		EnforceSequential     *bool `yaml:"enforce_sequential"`
		AllowBackward         *bool `yaml:"allow_backward"`
		AllowEmergency        *bool `yaml:"allow_emergency"`
		ValidatePrerequisites *bool `yaml:"validate_prerequisites"`
	} `yaml:"status_validation"`
	AutoCascade *struct {
		Enabled  *bool `yaml:"enabled"`
		MaxDepth *int  `yaml:"max_depth"`
	} `yaml:"auto_cascade"`
	StatusRoles       map[string]map[string]string `yaml:"status_roles"`
	CompletionCleanup *struct {
		Enabled         *bool `yaml:"enabled"`
		DeleteCancelled *bool `yaml:"delete_cancelled"`
		RetainCompleted *bool `yaml:"retain_completed"`
	} `yaml:"completion_cleanup"`
}

// Parse decodes a workflow configuration document. Sections present in
// the document replace the corresponding defaults wholesale; absent
// sections and absent boolean flags keep their documented defaults.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	cfg := Default()

	if fc.StatusProgression.Projects != nil {
		fc.StatusProgression.Projects.normalize()
		cfg.Projects = *fc.StatusProgression.Projects
	}
	if fc.StatusProgression.Features != nil {
		fc.StatusProgression.Features.normalize()
		cfg.Features = *fc.StatusProgression.Features
	}
	if fc.StatusProgression.Tasks != nil {
		fc.StatusProgression.Tasks.normalize()
		cfg.Tasks = *fc.StatusProgression.Tasks
	}

	if v := fc.StatusValidation; v != nil {
		cfg.Validation = ValidationRules{
			EnforceSequential:     boolOr(v.EnforceSequential, true),
			AllowBackward:         boolOr(v.AllowBackward, true),
			AllowEmergency:        boolOr(v.AllowEmergency, true),
			ValidatePrerequisites: boolOr(v.ValidatePrerequisites, true),
		}
	}

	if ac := fc.AutoCascade; ac != nil {
		cfg.Cascade = CascadeConfig{
			Enabled:  boolOr(ac.Enabled, false),
			MaxDepth: intOr(ac.MaxDepth, 3),
		}
		if cfg.Cascade.MaxDepth < 1 {
			cfg.Cascade.MaxDepth = 1
		}
	}

	if fc.StatusRoles != nil {
		cfg.Roles = parseRoles(fc.StatusRoles)
	}

	if cc := fc.CompletionCleanup; cc != nil {
		cfg.Cleanup = CleanupConfig{
			Enabled:         boolOr(cc.Enabled, true),
			DeleteCancelled: boolOr(cc.DeleteCancelled, true),
			RetainCompleted: boolOr(cc.RetainCompleted, true),
		}
	}

	return cfg, nil
}

// parseRoles converts the raw role map, accepting singular or plural
// entity type keys and dropping unknown roles.
func parseRoles(raw map[string]map[string]string) map[model.EntityType]map[string]model.Role {
	out := make(map[model.EntityType]map[string]model.Role, len(raw))
	for key, statuses := range raw {
		t, ok := entityTypeFromKey(key)
		if !ok {
			slog.Warn("unknown entity type in status_roles, skipping", "key", key)
			continue
		}
		byStatus := make(map[string]model.Role, len(statuses))
		for status, role := range statuses {
			r := model.Role(model.NormalizeStatus(role))
			if !model.IsValidRole(r) {
				slog.Warn("unknown role in status_roles, skipping", "status", status, "role", role)
				continue
			}
			byStatus[model.NormalizeStatus(status)] = r
		}
		out[t] = byStatus
	}
	return out
}

func entityTypeFromKey(key string) (model.EntityType, bool) {
	switch model.NormalizeStatus(key) {
	case "project", "projects":
		return model.EntityProject, true
	case "feature", "features":
		return model.EntityFeature, true
	case "task", "tasks":
		return model.EntityTask, true
	default:
		return "", false
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
