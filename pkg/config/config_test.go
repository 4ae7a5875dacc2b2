package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hcluster/pkg/types"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "hcluster", cfg.Prefix)
	assert.Equal(t, 1, cfg.Quorum.Count)
	assert.Equal(t, 3, cfg.Worker.Count)
	assert.Equal(t, 0, cfg.Aux.Count)
	assert.Equal(t, "m1.large", cfg.InstanceType)
	assert.Equal(t, "root", cfg.KeyName)
	assert.True(t, cfg.ValidateImages)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
prefix: analytics
version: 0.20.0
worker:
  count: 5
  extra_packages: lzo
retry:
  running:
    interval: 2s
provider:
  kind: memory
`))
	require.NoError(t, err)

	assert.Equal(t, "analytics", cfg.Prefix)
	assert.Equal(t, 5, cfg.Worker.Count)
	assert.Equal(t, 1, cfg.Quorum.Count)
	assert.Equal(t, "m1.large", cfg.InstanceType)
	assert.Equal(t, 2*time.Second, cfg.Retry.Running.Interval)
	assert.Equal(t, 15*time.Minute, cfg.Retry.Running.Deadline)
	assert.Equal(t, ProviderMemory, cfg.Provider.Kind)
	require.NoError(t, cfg.Validate())
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("worker: [unterminated"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		EnvAccessKeyID:     "AKID",
		EnvSecretAccessKey: "secret",
		EnvAccountID:       "1234-5678-9012",
		EnvEndpoint:        "ec2.us-west-1.amazonaws.com",
		EnvVersion:         "0.20.0",
	}))

	assert.Equal(t, "AKID", cfg.Credentials.AccessKeyID)
	assert.Equal(t, "123456789012", cfg.Credentials.AccountID)
	assert.Equal(t, "ec2.us-west-1.amazonaws.com", cfg.Provider.Endpoint)
	assert.Equal(t, "0.20.0", cfg.Version)

	cfg.Version = "explicit"
	cfg.ApplyEnv(env(map[string]string{EnvVersion: "ignored"}))
	assert.Equal(t, "explicit", cfg.Version)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Version = "0.20.0"
		cfg.Credentials = Credentials{AccessKeyID: "a", SecretAccessKey: "s"}
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(c *Config)
		expected error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing credentials", func(c *Config) { c.Credentials = Credentials{} }, ErrMissingCredentials},
		{"memory needs no credentials", func(c *Config) { c.Credentials = Credentials{}; c.Provider.Kind = ProviderMemory }, nil},
		{"unknown provider", func(c *Config) { c.Provider.Kind = "gce" }, ErrInvalid},
		{"no prefix", func(c *Config) { c.Prefix = "" }, ErrInvalid},
		{"no quorum", func(c *Config) { c.Quorum.Count = 0 }, ErrInvalid},
		{"no workers", func(c *Config) { c.Worker.Count = 0 }, ErrInvalid},
		{"negative aux", func(c *Config) { c.Aux.Count = -1 }, ErrInvalid},
		{"no image source", func(c *Config) { c.Version = "" }, ErrInvalid},
		{"override only", func(c *Config) { c.Version = ""; c.ImageID = "ami-1" }, nil},
		{"aux needs image when sized", func(c *Config) {
			c.Version = ""
			c.ImageID = ""
			c.Quorum.ImageID, c.Primary.ImageID, c.Standby.ImageID, c.Worker.ImageID = "a", "b", "c", "d"
			c.Aux.Count = 1
		}, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

func TestRole(t *testing.T) {
	cfg := Default()
	cfg.Version = "0.20.0"
	cfg.Primary.Count = 4
	cfg.Worker.InstanceType = "c1.xlarge"
	cfg.Quorum.ImageID = "ami-zk"
	cfg.Aux.Label = "custom-aux"

	primary := cfg.Role(types.RolePrimary)
	assert.Equal(t, 1, primary.Count)
	assert.Equal(t, "hbase-0.20.0-x86_64", primary.Label)
	assert.Equal(t, "m1.large", primary.InstanceType)

	assert.Equal(t, "c1.xlarge", cfg.Role(types.RoleWorker).InstanceType)
	assert.Equal(t, "ami-zk", cfg.Role(types.RoleQuorum).ImageID)
	assert.Equal(t, "custom-aux", cfg.Role(types.RoleAuxiliary).Label)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hcluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prefix: test\nversion: 1.0\nprovider:\n  kind: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Prefix)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalOmitsCredentials(t *testing.T) {
	cfg := Default()
	cfg.Credentials.SecretAccessKey = "do-not-write"
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Worker, back.Worker)
	assert.Empty(t, back.Credentials.SecretAccessKey)
}

func TestReadSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hcluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prefix: \"\"\nprovider:\n  kind: memory\n"), 0o600))

	cfg, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Prefix)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Default()
	cfg.Bootstrap.InitScript = "/opt/init.sh"
	cfg.ExpandPaths()
	assert.Equal(t, filepath.Join(home, ".ec2/root.pem"), cfg.Bootstrap.CredentialFile)
	assert.Equal(t, "/opt/init.sh", cfg.Bootstrap.InitScript)
}
