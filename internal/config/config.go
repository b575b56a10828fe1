package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SWITCHYARD_SERVER_PORT.
const EnvPrefix = "SWITCHYARD"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Target kinds.
const (
	TargetHTTP    = "http"
	TargetProcess = "process"
)

// Config holds all application configuration
type Config struct {
	Workflow    WorkflowConfig     `mapstructure:"workflow"`
	Server      ServerConfig       `mapstructure:"server"`
	MCP         MCPConfig          `mapstructure:"mcp"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Targets     []TargetConfig     `mapstructure:"targets"`
	TargetsFile string             `mapstructure:"targets_file"`
	Logger      LoggerConfig       `mapstructure:"logger"`
	Bootstrap   *domain.Definition `mapstructure:"bootstrap"`
}

// WorkflowConfig identifies the workflow instance and its budgets.
type WorkflowConfig struct {
	Name             string         `mapstructure:"name"`
	Admin            domain.Address `mapstructure:"admin"`
	EngineAddress    domain.Address `mapstructure:"engine_address"`
	HookBudget       time.Duration  `mapstructure:"hook_budget"`
	ValidatorTimeout time.Duration  `mapstructure:"validator_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string         `mapstructure:"host"`
	Port            int            `mapstructure:"port"`
	ReadTimeout     time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration  `mapstructure:"write_timeout"`
	MetricsPath     string         `mapstructure:"metrics_path"`
	Callers         []CallerConfig `mapstructure:"callers"`
	SignatureMaxAge time.Duration  `mapstructure:"signature_max_age"`
}

// CallerConfig is the shared secret an account signs transition requests with.
type CallerConfig struct {
	Address domain.Address `mapstructure:"address"`
	Secret  string         `mapstructure:"secret"`
}

// CallerSecrets indexes Callers by address.
func (c ServerConfig) CallerSecrets() map[domain.Address]string {
	out := make(map[domain.Address]string, len(c.Callers))
	for _, caller := range c.Callers {
		out[caller.Address] = caller.Secret
	}
	return out
}

// MCPConfig holds MCP server configuration. Transitions requested through
// MCP act as Caller; over SSE every request must carry Token as a bearer token.
type MCPConfig struct {
	Transport string         `mapstructure:"transport"`
	Port      int            `mapstructure:"port"`
	Caller    domain.Address `mapstructure:"caller"`
	Token     string         `mapstructure:"token"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Driver string         `mapstructure:"driver"`
	Redis  RedisConfig    `mapstructure:"redis"`
	SQLite DatabaseConfig `mapstructure:"sqlite"`
}

// RedisConfig holds redis connection, lock, audit and pause settings.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	AuditStream string        `mapstructure:"audit_stream"`
	AuditMaxLen int64         `mapstructure:"audit_max_len"`
	PauseKey    string        `mapstructure:"pause_key"`
}

// DatabaseConfig holds sqlite configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// TargetConfig binds a hook target or validator address to an HTTP endpoint or a local command.
type TargetConfig struct {
	Address domain.Address    `mapstructure:"address"`
	Kind    string            `mapstructure:"kind"`
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Secret  string            `mapstructure:"secret"`
	Header  map[string]string `mapstructure:"header"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// An empty path reads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DecodeHook decodes addresses, state ids, roles, rule kinds, phases,
// timestamps and durations from their string forms.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		emptyToZeroHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// emptyToZeroHookFunc lets an empty string leave fixed-size ids unset.
func emptyToZeroHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() == reflect.String && t.Kind() == reflect.Array && data == "" {
			return reflect.Zero(t).Interface(), nil
		}
		return data, nil
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("workflow.name", "default")
	v.SetDefault("workflow.admin", "")
	v.SetDefault("workflow.engine_address", "")
	v.SetDefault("workflow.hook_budget", 2*time.Second)
	v.SetDefault("workflow.validator_timeout", 5*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.signature_max_age", 5*time.Minute)

	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.port", 8081)
	v.SetDefault("mcp.caller", "")
	v.SetDefault("mcp.token", "")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "switchyard:")
	v.SetDefault("storage.redis.lock_ttl", 30*time.Second)
	v.SetDefault("storage.redis.audit_stream", "")
	v.SetDefault("storage.redis.audit_max_len", 10000)
	v.SetDefault("storage.redis.pause_key", "")
	v.SetDefault("storage.sqlite.path", "data/switchyard.db")
	v.SetDefault("storage.sqlite.max_open_conns", 1)
	v.SetDefault("storage.sqlite.max_idle_conns", 1)
	v.SetDefault("storage.sqlite.conn_max_lifetime", 0)

	v.SetDefault("targets_file", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Workflow.Name == "" {
		errs = append(errs, errors.New("workflow.name is required"))
	}
	if c.Workflow.Admin.IsZero() {
		errs = append(errs, errors.New("workflow.admin is required"))
	}
	if c.Workflow.HookBudget <= 0 {
		errs = append(errs, errors.New("workflow.hook_budget must be positive"))
	}
	if c.Workflow.ValidatorTimeout <= 0 {
		errs = append(errs, errors.New("workflow.validator_timeout must be positive"))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	callers := make(map[domain.Address]bool, len(c.Server.Callers))
	for i, caller := range c.Server.Callers {
		if caller.Address.IsZero() {
			errs = append(errs, fmt.Errorf("server.callers[%d].address is required", i))
			continue
		}
		if caller.Secret == "" {
			errs = append(errs, fmt.Errorf("server.callers[%d].secret is required", i))
		}
		if callers[caller.Address] {
			errs = append(errs, fmt.Errorf("server.callers[%d]: duplicate address %s", i, caller.Address))
		}
		callers[caller.Address] = true
	}

	switch c.MCP.Transport {
	case "stdio":
	case "sse":
		if !c.MCP.Caller.IsZero() && c.MCP.Token == "" {
			errs = append(errs, errors.New("mcp.token is required when mcp.caller is served over sse"))
		}
	default:
		errs = append(errs, fmt.Errorf("mcp.transport %q: want stdio or sse", c.MCP.Transport))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required"))
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want memory, redis or sqlite", c.Storage.Driver))
	}

	seen := make(map[domain.Address]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Address.IsZero() {
			errs = append(errs, fmt.Errorf("targets[%d].address is required", i))
			continue
		}
		if seen[t.Address] {
			errs = append(errs, fmt.Errorf("targets[%d]: duplicate address %s", i, t.Address))
		}
		seen[t.Address] = true

		switch t.Kind {
		case TargetHTTP:
			if t.URL == "" {
				errs = append(errs, fmt.Errorf("targets[%d].url is required for http targets", i))
			}
		case TargetProcess:
			if t.Command == "" {
				errs = append(errs, fmt.Errorf("targets[%d].command is required for process targets", i))
			}
		default:
			errs = append(errs, fmt.Errorf("targets[%d].kind %q: want http or process", i, t.Kind))
		}
	}

	if c.Bootstrap != nil {
		if err := validateDefinition(c.Bootstrap); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateDefinition(d *domain.Definition) error {
	known := make(map[domain.StateID]bool, len(d.States))
	for _, st := range d.States {
		if st.IsZero() {
			return fmt.Errorf("%w: empty state id", domain.ErrInvalidState)
		}
		if known[st] {
			return fmt.Errorf("%w: '%s'", domain.ErrDuplicateState, st)
		}
		known[st] = true
	}
	for _, e := range d.Edges {
		if !known[e.From] || !known[e.To] {
			return fmt.Errorf("%w: edge '%s' -> '%s' uses an unknown state", domain.ErrInvalidState, e.From, e.To)
		}
	}
	for _, tr := range d.Transitions {
		for _, from := range tr.From {
			if !known[from] {
				return fmt.Errorf("%w: transition %d enabled from unknown state '%s'", domain.ErrInvalidState, tr.ID, from)
			}
		}
	}
	if !d.Initial.IsZero() && !known[d.Initial] {
		return fmt.Errorf("%w: initial state '%s' is not declared", domain.ErrInvalidState, d.Initial)
	}
	return nil
}
