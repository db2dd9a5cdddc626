// Package config loads proxy settings from the environment, with an
// optional YAML file underneath, and validates the result.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// configFileEnv names the environment variable holding an optional YAML
// config file path. File values sit between defaults and environment
// overrides.
const configFileEnv = "PROXY_CONFIG"

// AppConfig holds configuration values for the proxy daemon.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is the network port the proxy will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`

	// Upstream is the resolver queries are forwarded to, in ip:port form.
	Upstream string `koanf:"upstream" validate:"required,ip_port"`

	// Timeout is the per-query upstream deadline as a duration string.
	Timeout string `koanf:"timeout" validate:"required,duration"`

	// RewriteDomain enables the answer-rewrite policy for this domain.
	// Empty means responses pass through unchanged.
	RewriteDomain string `koanf:"rewrite_domain" validate:"omitempty,fqdn"`

	// RewriteAddress is the IPv4 address substituted into rewritten
	// answers. Required whenever RewriteDomain is set.
	RewriteAddress string `koanf:"rewrite_address" validate:"required_with=RewriteDomain,omitempty,ipv4"`
}

// DEFAULT_APP_CONFIG defines the default settings for the proxy daemon.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Port:     53,
	Upstream: "8.8.8.8:53",
	Timeout:  "5s",
}

// ListenAddress returns the address the transport should bind.
func (c *AppConfig) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}

// QueryTimeout returns the parsed per-query timeout. The string form is
// validated at load time, so parsing here cannot fail.
func (c *AppConfig) QueryTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RewriteEnabled reports whether the answer-rewrite policy is configured.
func (c *AppConfig) RewriteEnabled() bool {
	return c.RewriteDomain != ""
}

// validIPPort validates whether the provided field value is a valid IP
// address and port combination in "IP:Port" form.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// validDuration validates a positive time.ParseDuration string.
func validDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// defaultLoader loads default configuration values using the structs
// provider. Swappable in tests.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader merges an optional YAML config file named by PROXY_CONFIG.
var fileLoader = func(k *koanf.Koanf) error {
	path := os.Getenv(configFileEnv)
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

// envLoader loads environment variables with the prefix "PROXY_",
// lowercasing keys and stripping the prefix.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "PROXY_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "PROXY_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// registerValidations installs the custom "ip_port" and "duration" rules.
var registerValidations = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("duration", validDuration)
}

// Load assembles the configuration from defaults, the optional file, and
// the environment, then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(validate); err != nil {
		return nil, fmt.Errorf("error registering validations: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
