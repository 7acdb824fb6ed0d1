// Package config loads the collections file of the sync client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/validation"
)

const (
	DefaultPushPath        = "/api/v1/sync/notify"
	DefaultFullSyncWorkers = 4
	DefaultDebounce        = time.Second
	DefaultMaxDelay        = 5 * time.Second
)

// Config is the root of the collections file.
type Config struct {
	Server      string       `yaml:"server"`
	PushPath    string       `yaml:"push_path"`
	Collections []Collection `yaml:"collections"`
	Sync        Sync         `yaml:"sync"`
}

// Sync holds coordinator settings.
type Sync struct {
	FullSyncWorkers int           `yaml:"full_sync_workers"`
	Debounce        time.Duration `yaml:"debounce"`
	MaxDelay        time.Duration `yaml:"max_delay"`
}

// Collection is a schema plus its field rules.
type Collection struct {
	Rules                   map[string][]RuleSpec `yaml:"rules"`
	models.CollectionSchema `yaml:",inline"`
}

// RuleSpec описывает одно правило валидации поля
type RuleSpec struct {
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Type    string   `yaml:"type"`
	Pattern string   `yaml:"pattern"`
	Values  []string `yaml:"values"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PushPath == "" {
		c.PushPath = DefaultPushPath
	}
	if c.Sync.FullSyncWorkers <= 0 {
		c.Sync.FullSyncWorkers = DefaultFullSyncWorkers
	}
	if c.Sync.Debounce <= 0 {
		c.Sync.Debounce = DefaultDebounce
	}
	if c.Sync.MaxDelay <= 0 {
		c.Sync.MaxDelay = DefaultMaxDelay
	}
}

// Validate checks schemas and rules of every collection.
func (c *Config) Validate() error {
	if len(c.Collections) == 0 {
		return ErrNoCollections
	}
	if c.Sync.MaxDelay < c.Sync.Debounce {
		return fmt.Errorf("sync.max_delay %s is shorter than sync.debounce %s", c.Sync.MaxDelay, c.Sync.Debounce)
	}

	seen := make(map[string]struct{}, len(c.Collections))
	var errs []error
	for _, coll := range c.Collections {
		if _, ok := seen[coll.Name]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateCollection, coll.Name))
			continue
		}
		seen[coll.Name] = struct{}{}

		if err := coll.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := coll.BuildRules(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Groups returns collections grouped by database group, in file order.
func (c *Config) Groups() ([]string, map[string][]Collection) {
	var order []string
	byGroup := make(map[string][]Collection)
	for _, coll := range c.Collections {
		if _, ok := byGroup[coll.Group]; !ok {
			order = append(order, coll.Group)
		}
		byGroup[coll.Group] = append(byGroup[coll.Group], coll)
	}
	return order, byGroup
}

// BuildRules compiles rule specs into validation rules.
func (c Collection) BuildRules() (map[string][]validation.Rule, error) {
	if len(c.Rules) == 0 {
		return nil, nil
	}
	out := make(map[string][]validation.Rule, len(c.Rules))
	for field, specs := range c.Rules {
		for _, spec := range specs {
			rule, err := spec.build()
			if err != nil {
				return nil, fmt.Errorf("collection %s field %s: %w", c.Name, field, err)
			}
			out[field] = append(out[field], rule)
		}
	}
	return out, nil
}

func (s RuleSpec) build() (validation.Rule, error) {
	switch strings.ToLower(s.Type) {
	case "required":
		return validation.Required(), nil
	case "string":
		return validation.String(int(deref(s.Min, 0)), int(deref(s.Max, 0))), nil
	case "number":
		return validation.Number(deref(s.Min, -1<<53), deref(s.Max, 1<<53)), nil
	case "pattern":
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return validation.Pattern(re), nil
	case "one_of":
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("one_of requires values")
		}
		return validation.OneOf(s.Values...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRule, s.Type)
}

func deref(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// DatabasePath returns the database file of a group.
// The empty group uses base as is, other groups get a suffix before the extension.
func DatabasePath(base, group string) string {
	if group == "" {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + group + ext
}
