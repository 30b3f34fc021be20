// Package config holds the viper configuration singleton. Settings come
// from .facet/config.yaml (found by walking up from the working
// directory), overridable through FACET_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	// DirName is the per-project data directory.
	DirName = "facet"
	// FileName is the config file inside the data directory.
	FileName = "config.yaml"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if dir, err := FindDir(); err == nil {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			configFileSet = true
		}
	}

	// Environment variables take precedence over the config file,
	// e.g. FACET_DATABASE, FACET_DEBOUNCE_SECONDS, FACET_DEVICE_ID.
	v.SetEnvPrefix("FACET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database", "facet.db")
	v.SetDefault("debounce_seconds", 3)
	v.SetDefault("premium_product", "app.facet.premium")
	v.SetDefault("log_file", "")
	v.SetDefault("device_id", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// ResetForTesting clears the config state so Initialize can run again.
// Not thread-safe; only call from single-threaded test contexts.
func ResetForTesting() {
	v = nil
}

// FindDir walks up from the working directory looking for a .facet
// directory and returns its path.
func FindDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "."+DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("no .%s directory found (run 'facet init')", DirName)
		}
	}
}

// Database returns the database path. Relative paths resolve against the
// .facet directory.
func Database(facetDir string) string {
	db := getString("database")
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(facetDir, db)
}

// Debounce returns the persistence debounce window.
func Debounce() time.Duration {
	secs := getInt("debounce_seconds")
	if secs <= 0 {
		secs = 3
	}
	return time.Duration(secs) * time.Second
}

// PremiumProduct returns the product id that unlocks the full version.
func PremiumProduct() string {
	return getString("premium_product")
}

// LogFile returns the daemon log path, or empty for stderr.
func LogFile() string {
	return getString("log_file")
}

// DeviceID returns this installation's stable device id. When not
// configured, one is generated and persisted under the .facet directory
// so the sync reconciler can tell local writes from remote ones.
func DeviceID(facetDir string) (string, error) {
	if id := getString("device_id"); id != "" {
		return id, nil
	}

	path := filepath.Join(facetDir, "device")
	raw, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persisting device id: %w", err)
	}
	return id, nil
}

func getString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func getInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}
