// Package config loads the shiplift configuration file: the resource
// declaration plus backend, logging, and deployment settings.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/state"
)

const envPrefix = "SHIPLIFT"

// Config is the full contents of a shiplift.yaml.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Region      string           `mapstructure:"region"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Backend     state.Config     `mapstructure:"backend"`
	Provider    ProviderConfig   `mapstructure:"provider"`
	Resources   []*ir.Resource   `mapstructure:"resources"`
	Outputs     []*ir.OutputSpec `mapstructure:"outputs"`
	Deploy      DeployConfig     `mapstructure:"deploy"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig carries settings handed verbatim to providers.
type ProviderConfig struct {
	Profile string `mapstructure:"profile"`
}

// DeployConfig describes the readiness probe and SSH handoff that run
// after a successful apply.
type DeployConfig struct {
	// Image is the container image handed off to the host.
	Image string `mapstructure:"image"`
	// ContainerName names the replaced container (default "app").
	ContainerName string `mapstructure:"container_name"`
	// SSHUser is the remote login user (default "ec2-user").
	SSHUser string `mapstructure:"ssh_user"`
	// SSHPort is the probed and connected port (default 22).
	SSHPort int `mapstructure:"ssh_port"`
	// PrivateKeyPath locates the SSH private key for handoff.
	PrivateKeyPath string `mapstructure:"private_key_path"`
	// ReadinessTimeoutSeconds bounds the TCP readiness wait (default 30).
	ReadinessTimeoutSeconds int `mapstructure:"readiness_timeout_seconds"`
}

// ReadinessTimeout returns the configured readiness bound as a duration.
func (d DeployConfig) ReadinessTimeout() time.Duration {
	return time.Duration(d.ReadinessTimeoutSeconds) * time.Second
}

// Load reads the configuration file at path, layering SHIPLIFT_*
// environment variables on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigRead, "failed to read configuration file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigValidation, "failed to decode configuration")
	}

	if err := cfg.Declaration().Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigValidation, "invalid declaration")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "us-east-1")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("backend.type", "local")
	v.SetDefault("deploy.container_name", "app")
	v.SetDefault("deploy.ssh_user", "ec2-user")
	v.SetDefault("deploy.ssh_port", 22)
	v.SetDefault("deploy.readiness_timeout_seconds", 30)
}

// Declaration projects the configuration into the engine's input form.
func (c *Config) Declaration() *ir.Declaration {
	return &ir.Declaration{
		Environment: c.Environment,
		Region:      c.Region,
		Resources:   c.Resources,
		Outputs:     c.Outputs,
	}
}

// ProviderSettings flattens the settings passed to provider Configure.
func (c *Config) ProviderSettings() map[string]string {
	settings := map[string]string{
		"region": c.Region,
	}
	if c.Provider.Profile != "" {
		settings["profile"] = c.Provider.Profile
	}
	return settings
}
