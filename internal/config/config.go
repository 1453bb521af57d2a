// Package config handles communication-core configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/commcore/config.yaml, /config/config.yaml,
// /etc/commcore/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "commcore", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/commcore/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the configuration surface consumed by the communication
// core (spec §6). The core does not own this struct's lifecycle — a
// container or demo entrypoint loads it and passes the pieces it needs
// into comm.Options.
type Config struct {
	// BrokerURL is the MQTT broker endpoint, e.g. "mqtt://localhost:1883"
	// or "mqtts://broker.example.com:8883".
	BrokerURL string `yaml:"broker_url"`

	// Identity describes this process's own Component.
	Identity IdentityConfig `yaml:"identity"`

	// ShouldAutoStart starts the communication manager as soon as it is
	// resolved by the container, rather than waiting for an explicit
	// Start call.
	ShouldAutoStart bool `yaml:"should_auto_start"`

	// ShouldAdvertiseIdentity advertises this manager's own Component on
	// transition to Online. Defaults to true (spec §4.6).
	ShouldAdvertiseIdentity *bool `yaml:"should_advertise_identity"`

	// ShouldAdvertiseDevice advertises AssociatedDevice on Online, if set.
	ShouldAdvertiseDevice bool `yaml:"should_advertise_device"`

	// UseReadableTopics enables name-prefixed identifier encoding
	// (spec §4.1 readable mode).
	UseReadableTopics bool `yaml:"use_readable_topics"`

	// AssociatedUserID is the User object UUID included in outgoing
	// topics, or empty when no user is associated.
	AssociatedUserID string `yaml:"associated_user_id"`

	// AssociatedUserName is the readable-mode name for AssociatedUserID.
	AssociatedUserName string `yaml:"associated_user_name"`

	// DeferredQueueSize bounds the deferred-publish queue (spec §4.6,
	// §9). Zero means unbounded (the source's default behavior); the
	// core treats a configured positive value as the opt-in bounded
	// mode with drop-oldest and a warning log.
	DeferredQueueSize int `yaml:"deferred_queue_size"`

	// LogLevel selects the slog level: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsEnabled registers Prometheus collectors on
	// comm.Options.Registerer, or on the default registerer when that is
	// nil (spec §6.1). Disabled by default — metrics are an
	// optional ambient concern, not a core requirement.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// DataDir stores the persisted process identity (instance UUID)
	// across restarts, mirroring the teacher's instance-ID persistence.
	DataDir string `yaml:"data_dir"`
}

// IdentityConfig names this manager's own Component (spec §3).
type IdentityConfig struct {
	// Name is the human-readable Component name.
	Name string `yaml:"name"`
	// ObjectType is the reverse-DNS object type, e.g. "com.example.service".
	ObjectType string `yaml:"object_type"`
}

// AdvertiseIdentity reports whether the manager should advertise its
// own identity on Online, applying the spec's default-true behavior
// when the field was left unset in YAML.
func (c Config) AdvertiseIdentity() bool {
	if c.ShouldAdvertiseIdentity == nil {
		return true
	}
	return *c.ShouldAdvertiseIdentity
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${BROKER_URL}). Convenience
	// for container deployments; putting values directly in the file
	// remains the recommended approach.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.BrokerURL == "" {
		c.BrokerURL = "mqtt://localhost:1883"
	}
	if c.Identity.Name == "" {
		c.Identity.Name = "CommunicationManager"
	}
	if c.Identity.ObjectType == "" {
		c.Identity.ObjectType = "coaty.core.CommunicationManager"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("broker_url must not be empty")
	}
	if c.DeferredQueueSize < 0 {
		return fmt.Errorf("deferred_queue_size %d must not be negative", c.DeferredQueueSize)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local
// development against a broker on localhost. All defaults are already
// applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
