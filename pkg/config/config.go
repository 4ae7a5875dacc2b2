package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/hcluster/pkg/images"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

var (
	// ErrMissingCredentials is returned when provider credentials are absent
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrInvalid is returned for configuration that cannot describe a cluster
	ErrInvalid = errors.New("invalid cluster configuration")
)

// Provider kinds
const (
	ProviderEC2    = "ec2"
	ProviderMemory = "memory"
)

// Environment variables read by ApplyEnv
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvAccountID       = "AWS_ACCOUNT_ID"
	EnvEndpoint        = "AWS_ENDPOINT"
	EnvVersion         = "HBASE_VERSION"
)

// RoleConfig sizes and images one role
type RoleConfig struct {
	Count         int    `yaml:"count,omitempty"`
	Label         string `yaml:"label,omitempty"`
	ImageID       string `yaml:"image_id,omitempty"`
	InstanceType  string `yaml:"instance_type,omitempty"`
	ExtraPackages string `yaml:"extra_packages,omitempty"`
}

// BootstrapConfig locates the files installed on nodes
type BootstrapConfig struct {
	CredentialFile string `yaml:"credential_file"`
	InitScript     string `yaml:"init_script"`
	QuorumScript   string `yaml:"quorum_script"`
	RemoteUser     string `yaml:"remote_user"`
	SSHPort        int    `yaml:"ssh_port"`
}

// PolicyConfig is the YAML form of a retry.Policy
type PolicyConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Deadline    time.Duration `yaml:"deadline"`
}

// Policy converts to a retry.Policy
func (p PolicyConfig) Policy() retry.Policy {
	return retry.Policy{Interval: p.Interval, MaxAttempts: p.MaxAttempts, Deadline: p.Deadline}
}

// RetryConfig bounds each retrying call site
type RetryConfig struct {
	Running   PolicyConfig `yaml:"running"`
	Remote    PolicyConfig `yaml:"remote"`
	Bootstrap PolicyConfig `yaml:"bootstrap"`
	Provider  PolicyConfig `yaml:"provider"`
}

// ProviderConfig selects and configures the provider gateway
type ProviderConfig struct {
	Kind     string  `yaml:"kind"`
	Region   string  `yaml:"region,omitempty"`
	Endpoint string  `yaml:"endpoint,omitempty"`
	Rate     float64 `yaml:"rate"`
	Burst    int     `yaml:"burst"`

	// AuthorizePause spaces out mutual-trust rule changes
	AuthorizePause time.Duration `yaml:"authorize_pause"`
}

// Credentials are read from the environment only and never persisted
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	AccountID       string
}

// Config describes one cluster
type Config struct {
	// Prefix names the cluster and its isolation groups
	Prefix string `yaml:"prefix"`

	Version string `yaml:"version,omitempty"`
	Arch    string `yaml:"arch"`

	// ImageID overrides image resolution for every role without its own
	ImageID string `yaml:"image_id,omitempty"`

	InstanceType   string `yaml:"instance_type"`
	KeyName        string `yaml:"key_name"`
	Zone           string `yaml:"zone,omitempty"`
	ValidateImages bool   `yaml:"validate_images"`
	Debug          int    `yaml:"debug"`
	LogLevel       string `yaml:"service_log_level"`
	Kerberized     bool   `yaml:"kerberized"`

	Quorum  RoleConfig `yaml:"quorum"`
	Primary RoleConfig `yaml:"primary"`
	Standby RoleConfig `yaml:"standby"`
	Worker  RoleConfig `yaml:"worker"`
	Aux     RoleConfig `yaml:"aux"`

	Bootstrap        BootstrapConfig `yaml:"bootstrap"`
	Retry            RetryConfig     `yaml:"retry"`
	Provider         ProviderConfig  `yaml:"provider"`
	FinalizeCommands []string        `yaml:"finalize_commands"`

	Credentials Credentials `yaml:"-" json:"-"`
}

// Default returns a configuration with every default filled in
func Default() *Config {
	return &Config{
		Prefix:         "hcluster",
		Arch:           "x86_64",
		InstanceType:   "m1.large",
		KeyName:        "root",
		ValidateImages: true,
		LogLevel:       "DEBUG",
		Quorum:         RoleConfig{Count: 1},
		Primary:        RoleConfig{Count: 1},
		Standby:        RoleConfig{Count: 1},
		Worker:         RoleConfig{Count: 3},
		Bootstrap: BootstrapConfig{
			CredentialFile: "~/.ec2/root.pem",
			InitScript:     "bin/hbase-ec2-init-remote.sh",
			QuorumScript:   "bin/hbase-ec2-init-zookeeper-remote.sh",
			RemoteUser:     "root",
			SSHPort:        22,
		},
		Retry: RetryConfig{
			Running:   PolicyConfig{Interval: time.Second, Deadline: 15 * time.Minute},
			Remote:    PolicyConfig{Interval: 5 * time.Second, Deadline: 15 * time.Minute},
			Bootstrap: PolicyConfig{Interval: 10 * time.Second, Deadline: 20 * time.Minute},
			Provider:  PolicyConfig{Interval: 2 * time.Second, MaxAttempts: 10, Deadline: 2 * time.Minute},
		},
		Provider: ProviderConfig{
			Kind:           ProviderEC2,
			Region:         "us-east-1",
			Rate:           5,
			Burst:          10,
			AuthorizePause: time.Second,
		},
		FinalizeCommands: []string{
			"ln -s /usr/local/hadoop/hadoop-test-*.jar /usr/local/hadoop/hadoop-test.jar",
		},
	}
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Read reads a cluster file and applies the environment without validating,
// so callers can layer flag overrides on top. An empty path reads the
// defaults.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ExpandPaths()
	return cfg, nil
}

// Load reads a cluster file, applies the environment and validates
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills credentials and the version from the environment. The
// endpoint and version only fill unset fields.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAccessKeyID); ok {
		c.Credentials.AccessKeyID = v
	}
	if v, ok := lookup(EnvSecretAccessKey); ok {
		c.Credentials.SecretAccessKey = v
	}
	if v, ok := lookup(EnvAccountID); ok {
		c.Credentials.AccountID = strings.ReplaceAll(v, "-", "")
	}
	if v, ok := lookup(EnvEndpoint); ok && c.Provider.Endpoint == "" {
		c.Provider.Endpoint = v
	}
	if v, ok := lookup(EnvVersion); ok && c.Version == "" {
		c.Version = v
	}
}

// ExpandPaths resolves a leading ~/ in the local bootstrap file paths
func (c *Config) ExpandPaths() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{&c.Bootstrap.CredentialFile, &c.Bootstrap.InitScript, &c.Bootstrap.QuorumScript} {
		if strings.HasPrefix(*p, "~/") {
			*p = home + (*p)[1:]
		}
	}
}

// Validate checks the configuration before any resource is touched
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderEC2:
		if c.Credentials.AccessKeyID == "" || c.Credentials.SecretAccessKey == "" {
			return fmt.Errorf("%w: set %s and %s", ErrMissingCredentials, EnvAccessKeyID, EnvSecretAccessKey)
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("%w: unknown provider kind %q", ErrInvalid, c.Provider.Kind)
	}

	if c.Prefix == "" {
		return fmt.Errorf("%w: prefix is required", ErrInvalid)
	}
	if c.Quorum.Count < 1 {
		return fmt.Errorf("%w: quorum count must be at least 1", ErrInvalid)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("%w: worker count must be at least 1", ErrInvalid)
	}
	if c.Aux.Count < 0 {
		return fmt.Errorf("%w: aux count cannot be negative", ErrInvalid)
	}

	for _, role := range types.LaunchOrder {
		if role == types.RoleAuxiliary && c.Aux.Count == 0 {
			continue
		}
		rc := c.Role(role)
		if rc.ImageID == "" && rc.Label == "" {
			return fmt.Errorf("%w: %s needs an image id, a label, or a version", ErrInvalid, role)
		}
		if rc.InstanceType == "" {
			return fmt.Errorf("%w: %s needs an instance type", ErrInvalid, role)
		}
	}
	return nil
}

// Role returns the effective settings for role: fixed counts for primary and
// standby, and cluster-wide image and instance type where the role sets none.
func (c *Config) Role(role types.Role) RoleConfig {
	var rc RoleConfig
	switch role {
	case types.RoleQuorum:
		rc = c.Quorum
	case types.RolePrimary:
		rc = c.Primary
		rc.Count = 1
	case types.RoleStandby:
		rc = c.Standby
		rc.Count = 1
	case types.RoleWorker:
		rc = c.Worker
	case types.RoleAuxiliary:
		rc = c.Aux
	}

	if rc.ImageID == "" {
		rc.ImageID = c.ImageID
	}
	if rc.Label == "" && c.Version != "" {
		rc.Label = images.LabelFor(c.Version, c.Arch)
	}
	if rc.InstanceType == "" {
		rc.InstanceType = c.InstanceType
	}
	return rc
}

// Marshal encodes the configuration as YAML, without credentials
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
