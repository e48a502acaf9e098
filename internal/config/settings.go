package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is prepended to every environment variable read by EnvSettings.
const EnvPrefix = "SQLITECTL_"

// SettingsGetter is an interface for retrieving settings from storage
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// EnvSettings reads settings from the process environment. The key
// "tuning.cache_size" is looked up as SQLITECTL_TUNING_CACHE_SIZE.
type EnvSettings struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// EnvName returns the environment variable name for a settings key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// GetSetting implements SettingsGetter.
func (e EnvSettings) GetSetting(key string) (string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	val, _ := lookup(EnvName(key))
	return strings.TrimSpace(val), nil
}

// Loader provides typed access to settings with default values
type Loader struct {
	db SettingsGetter
}

// NewLoader creates a new settings loader
func NewLoader(db SettingsGetter) *Loader {
	return &Loader{db: db}
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val, _ := l.db.GetSetting(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Int64 retrieves an int64 setting, returning defaultVal if not found or invalid
func (l *Loader) Int64(key string, defaultVal int64) int64 {
	if val, _ := l.db.GetSetting(key); val != "" {
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found
// Recognizes "true" as true, anything else (including "false") as false
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val, _ := l.db.GetSetting(key); val != "" {
		return val == "true"
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val, _ := l.db.GetSetting(key); val != "" {
		return val
	}
	return defaultVal
}
