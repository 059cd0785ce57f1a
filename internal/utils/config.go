package utils

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/rs/zerolog"

	"github.com/waggle-sensor/registration-agent/internal/constants"
	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/file"
)

// ConfigError reports a missing or invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config represents the structure of the configuration file.
type Config struct {
	Registration struct {
		Host           string `ini:"host" yaml:"host"`                       // Registration authority host
		Port           string `ini:"port" yaml:"port"`                       // Registration authority SSH port
		User           string `ini:"user" yaml:"user"`                       // Account used for the bootstrap login
		Key            string `ini:"key" yaml:"key"`                         // Path to the bootstrap private key
		KeyCert        string `ini:"keycert" yaml:"keycert"`                 // Path to the bootstrap certificate (optional)
		KnownHosts     string `ini:"known_hosts" yaml:"known_hosts"`         // known_hosts file for host key verification (optional)
		Budget         string `ini:"budget" yaml:"budget"`                   // Total retry budget
		Backoff        string `ini:"backoff" yaml:"backoff"`                 // Sleep between failed attempts
		ConnectTimeout string `ini:"connect_timeout" yaml:"connect_timeout"` // Timeout for establishing the SSH connection
		CommandTimeout string `ini:"command_timeout" yaml:"command_timeout"` // Timeout for one remote command
		OutputLimit    int    `ini:"output_limit" yaml:"output_limit"`       // Maximum size of remote output in bytes
		Strict         bool   `ini:"strict" yaml:"strict"`                   // Decode issued keys before installing them
	} `ini:"registration" yaml:"registration"`

	ReverseTunnel struct {
		PubKey string `ini:"pubkey" yaml:"pubkey"` // Path of the issued public key
		Key    string `ini:"key" yaml:"key"`       // Path of the issued private key
	} `ini:"reverse-tunnel" yaml:"reverse-tunnel"`

	System struct {
		NodeIDFile string `ini:"node_id_file" yaml:"node_id_file"` // Path to the device identity file
	} `ini:"system" yaml:"system"`

	Logging struct {
		Level string `ini:"level" yaml:"level"` // zerolog level name
	} `ini:"logging" yaml:"logging"`

	Notify struct {
		Enabled       bool   `ini:"enabled" yaml:"enabled"`               // Publish a registration event
		Broker        string `ini:"broker" yaml:"broker"`                 // MQTT broker address
		ClientID      string `ini:"client_id" yaml:"client_id"`           // MQTT client ID prefix
		CACertificate string `ini:"ca_certificate" yaml:"ca_certificate"` // Path to the CA certificate
		Topic         string `ini:"topic" yaml:"topic"`                   // Topic for registration events
		QOS           int    `ini:"qos" yaml:"qos"`                       // MQTT QoS level
	} `ini:"notify" yaml:"notify"`

	// Parsed durations, filled in by LoadConfig.
	RetryBudget       time.Duration `ini:"-" yaml:"-"`
	RetryBackoff      time.Duration `ini:"-" yaml:"-"`
	ConnectionTimeout time.Duration `ini:"-" yaml:"-"`
	CommandTimeout    time.Duration `ini:"-" yaml:"-"`
}

// requiredSections must be present in an INI configuration.
var requiredSections = []string{"reverse-tunnel", "registration"}

// LoadConfig loads the configuration from the specified file. Files ending in
// .yaml or .yml are decoded as YAML, anything else as INI. Defaults are
// applied and every required value is checked before returning.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot access %s: %v", filename, err)}
	}
	if !exists {
		return nil, &ConfigError{Reason: fmt.Sprintf("file %s not found", filename)}
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := fileClient.ReadYamlFile(filename, &config); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("failed to parse %s: %v", filename, err)}
		}
	default:
		if err := loadIni(filename, fileClient, &config); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()
	if err := config.parseDurations(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func loadIni(filename string, fileClient file.FileOperations, config *Config) error {
	raw, err := fileClient.ReadFileRaw(filename)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to read %s: %v", filename, err)}
	}

	cfg, err := ini.Load(raw)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to parse %s: %v", filename, err)}
	}

	for _, name := range requiredSections {
		if !cfg.HasSection(name) {
			return &ConfigError{Field: name, Reason: fmt.Sprintf("section missing in config file [%s]", filename)}
		}
	}

	if err := cfg.StrictMapTo(config); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to map %s: %v", filename, err)}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Registration.User == "" {
		c.Registration.User = constants.DefaultRegistrationUser
	}
	if c.Registration.OutputLimit == 0 {
		c.Registration.OutputLimit = constants.DefaultOutputSizeLimit
	}
	if c.System.NodeIDFile == "" {
		c.System.NodeIDFile = constants.DefaultNodeIDFile
	}
	if c.Logging.Level == "" {
		c.Logging.Level = zerolog.InfoLevel.String()
	}
	if c.Notify.ClientID == "" {
		c.Notify.ClientID = "registration-agent"
	}
	if c.Notify.QOS == 0 {
		c.Notify.QOS = constants.DefaultNotifyQOS
	}
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name   string
		raw    string
		def    time.Duration
		target *time.Duration
	}{
		{"registration.budget", c.Registration.Budget, constants.DefaultRegistrationBudget, &c.RetryBudget},
		{"registration.backoff", c.Registration.Backoff, constants.DefaultRetryBackoff, &c.RetryBackoff},
		{"registration.connect_timeout", c.Registration.ConnectTimeout, constants.ConnectionTimeout, &c.ConnectionTimeout},
		{"registration.command_timeout", c.Registration.CommandTimeout, constants.DefaultCommandTimeout, &c.CommandTimeout},
	}

	for _, f := range fields {
		d, err := parseDuration(f.raw, f.def)
		if err != nil {
			return &ConfigError{Field: f.name, Reason: err.Error()}
		}
		*f.target = d
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	var d time.Duration
	if seconds, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"reverse-tunnel.pubkey", c.ReverseTunnel.PubKey},
		{"reverse-tunnel.key", c.ReverseTunnel.Key},
		{"registration.host", c.Registration.Host},
		{"registration.port", c.Registration.Port},
		{"registration.user", c.Registration.User},
		{"registration.key", c.Registration.Key},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigError{Field: r.name, Reason: "is not defined"}
		}
	}

	if port, err := strconv.Atoi(c.Registration.Port); err != nil || port <= 0 || port > 65535 {
		return &ConfigError{Field: "registration.port", Reason: fmt.Sprintf("invalid port %q", c.Registration.Port)}
	}

	if c.Registration.OutputLimit <= 0 {
		return &ConfigError{Field: "registration.output_limit", Reason: fmt.Sprintf("must be positive, got %d", c.Registration.OutputLimit)}
	}

	if c.Notify.QOS < 0 || c.Notify.QOS > 2 {
		return &ConfigError{Field: "notify.qos", Reason: fmt.Sprintf("must be 0, 1 or 2, got %d", c.Notify.QOS)}
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigError{Field: "logging.level", Reason: err.Error()}
	}

	if c.Notify.Enabled && (c.Notify.Broker == "" || c.Notify.Topic == "") {
		return &ConfigError{Field: "notify", Reason: "broker and topic are required when enabled"}
	}
	return nil
}

// Endpoint returns the registration authority endpoint.
func (c *Config) Endpoint() models.RegistrationEndpoint {
	return models.RegistrationEndpoint{
		Host:              c.Registration.Host,
		Port:              c.Registration.Port,
		User:              c.Registration.User,
		BootstrapKeyPath:  c.Registration.Key,
		BootstrapCertPath: c.Registration.KeyCert,
		KnownHostsPath:    c.Registration.KnownHosts,
	}
}

// FileSet returns the credential file set to install into.
func (c *Config) FileSet() models.CredentialFileSet {
	return models.NewCredentialFileSet(c.ReverseTunnel.PubKey, c.ReverseTunnel.Key)
}
