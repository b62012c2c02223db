package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"schoolsched/internal/model"
)

const (
	defaultListen          = "127.0.0.1:8080"
	defaultTimezone        = "America/Los_Angeles"
	defaultRefreshCron     = "0 */6 * * *"
	defaultHorizonDays     = 120
	defaultBackfillDays    = 14
	defaultCacheTTLHours   = 24
	defaultFeedURLTemplate = "https://api.veracross.com/catlin/subscribe/{uuid}.ics"
)

var defaultExcludeTitles = []string{"Morning Choir"}

// ScheduleConfig names a schedule built from one or more calendar feeds.
type ScheduleConfig struct {
	// ID is the schedule identifier used in the API and the cache.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Feeds lists calendar UUIDs or full ICS URLs.
	Feeds []string `yaml:"feeds" json:"feeds"`
	// Division overrides the top-level division for this schedule.
	Division string `yaml:"division,omitempty" json:"division,omitempty"`
}

// RedisConfig points the schedule cache at a Redis server. An empty Addr
// keeps the cache in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone block times are expressed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Division is the default school division attached to schedules.
	Division string `yaml:"division" json:"division"`

	// RefreshCron is a cron spec (e.g. "0 */6 * * *") for rebuilding the
	// configured schedules.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound the window recurring events are
	// expanded into, relative to now.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// FeedURLTemplate builds a subscribe URL from a calendar UUID; "{uuid}"
	// is replaced.
	FeedURLTemplate string `yaml:"feed_url_template" json:"feed_url_template"`

	// ExcludeTitles are regular expressions; matching events are not blocks.
	ExcludeTitles []string `yaml:"exclude_titles" json:"exclude_titles"`

	// CacheDir holds the ICS HTTP cache. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CacheTTLHours is how old a cached schedule may get before it is
	// rebuilt in the background.
	CacheTTLHours int `yaml:"cache_ttl_hours" json:"cache_ttl_hours"`

	Redis RedisConfig `yaml:"redis" json:"redis"`

	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		Division:        string(model.DivisionUpper),
		RefreshCron:     defaultRefreshCron,
		HorizonDays:     defaultHorizonDays,
		BackfillDays:    defaultBackfillDays,
		FeedURLTemplate: defaultFeedURLTemplate,
		ExcludeTitles:   append([]string(nil), defaultExcludeTitles...),
		CacheDir:        "",
		CacheTTLHours:   defaultCacheTTLHours,
		Schedules:       []ScheduleConfig{},
		LogLevel:        "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if _, err := model.ParseDivision(c.Division); err != nil {
		c.Division = string(model.DivisionUpper)
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.FeedURLTemplate == "" {
		c.FeedURLTemplate = defaultFeedURLTemplate
	}
	if c.ExcludeTitles == nil {
		c.ExcludeTitles = append([]string(nil), defaultExcludeTitles...)
	}
	if c.CacheTTLHours <= 0 {
		c.CacheTTLHours = defaultCacheTTLHours
	}
	if c.Schedules == nil {
		c.Schedules = []ScheduleConfig{}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports problems Normalize cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := c.ExcludePatterns(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("schedules[%d]: id is empty", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Division != "" {
			if _, err := model.ParseDivision(s.Division); err != nil {
				errs = append(errs, fmt.Errorf("schedules[%d]: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ExcludePatterns compiles ExcludeTitles.
func (c *Config) ExcludePatterns() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.ExcludeTitles))
	for _, p := range c.ExcludeTitles {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclude_titles %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// CacheTTL returns CacheTTLHours as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// DivisionFor returns the division for a configured schedule id, or the
// default division when the id is not configured or has no override.
func (c *Config) DivisionFor(id string) model.Division {
	if s, ok := c.FindSchedule(id); ok && s.Division != "" {
		if d, err := model.ParseDivision(s.Division); err == nil {
			return d
		}
	}
	d, err := model.ParseDivision(c.Division)
	if err != nil {
		return model.DivisionUpper
	}
	return d
}

// FindSchedule looks up a configured schedule by id.
func (c *Config) FindSchedule(id string) (ScheduleConfig, bool) {
	for _, s := range c.Schedules {
		if s.ID == id {
			return s, true
		}
	}
	return ScheduleConfig{}, false
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable default is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schoolsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
