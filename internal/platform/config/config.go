// Package config loads gateway configuration from the environment, an
// optional .env file, and an optional YAML file, in that precedence order
// (environment wins). Every option recognized is named in spec §6.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RoleLimits bounds one role's query scope and daily quota (spec §6
// "role_limits.{role}.{...}").
type RoleLimits struct {
	MaxTables       int `yaml:"max_tables"`
	MaxJoins        int `yaml:"max_joins"`
	MaxRows         int `yaml:"max_rows"`
	DailyQueryQuota int `yaml:"daily_query_quota"`
}

// Config is the exhaustive set of options spec §6 names. Fields tagged
// `env:` are read from the process environment by envdecode; fields also
// tagged `yaml:` may additionally be supplied via an overlay file for
// values awkward to express as env vars (role_limits, sensitive_tables).
type Config struct {
	MaxIterations    int `env:"MAX_ITERATIONS,default=40" yaml:"max_iterations"`
	LLMTimeoutS      int `env:"LLM_TIMEOUT_S,default=30" yaml:"llm_timeout_s"`
	DBTimeoutS       int `env:"DB_TIMEOUT_S,default=60" yaml:"db_timeout_s"`
	SchemaCacheTTLS  int `env:"SCHEMA_CACHE_TTL_S,default=3600" yaml:"schema_cache_ttl_s"`
	SampleCacheTTLS  int `env:"SAMPLE_CACHE_TTL_S,default=1800" yaml:"sample_cache_ttl_s"`

	ResultCacheCap         int `env:"RESULT_CACHE_CAP,default=1000" yaml:"result_cache_cap"`
	ResultCacheSmallTTLS   int `env:"RESULT_CACHE_SMALL_TTL_S,default=1800" yaml:"result_cache_small_ttl_s"`
	ResultCacheMediumTTLS  int `env:"RESULT_CACHE_MEDIUM_TTL_S,default=600" yaml:"result_cache_medium_ttl_s"`
	ResultCacheLargeTTLS   int `env:"RESULT_CACHE_LARGE_TTL_S,default=300" yaml:"result_cache_large_ttl_s"`
	FingerprintCacheTTLS   int `env:"FINGERPRINT_CACHE_TTL_S,default=2592000" yaml:"fingerprint_cache_ttl_s"`

	PoolMin              int `env:"POOL_MIN,default=1" yaml:"pool_min"`
	PoolMax              int `env:"POOL_MAX,default=10" yaml:"pool_max"`
	PoolAcquireTimeoutS  int `env:"POOL_ACQUIRE_TIMEOUT_S,default=10" yaml:"pool_acquire_timeout_s"`

	BreakerThreshold int `env:"BREAKER_THRESHOLD,default=5" yaml:"breaker_threshold"`
	BreakerCoolOffS  int `env:"BREAKER_COOL_OFF_S,default=30" yaml:"breaker_cool_off_s"`

	ApprovalRiskLevelsThatRequire []string `yaml:"approval_risk_levels_that_require"`
	SensitiveTables               []string `yaml:"sensitive_tables"`
	RoleLimits                    map[string]RoleLimits `yaml:"role_limits"`

	CostLevelRequiringApproval string `env:"COST_LEVEL_REQUIRING_APPROVAL,default=high" yaml:"cost_level_requiring_approval"`
	CostLevelBlocking          string `env:"COST_LEVEL_BLOCKING,default=critical" yaml:"cost_level_blocking"`

	AutoApproveDefault bool `env:"AUTO_APPROVE_DEFAULT,default=false" yaml:"auto_approve_default"`
	DevMode            bool `env:"DEV_MODE,default=false" yaml:"dev_mode"`

	// Ambient, non-spec-table options needed to stand up the process
	// (listen address, log level, connection strings) live here rather
	// than invent a second config struct.
	ListenAddr     string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	LogFormat      string `env:"LOG_FORMAT,default=text"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	CheckpointDSN  string `env:"CHECKPOINT_DSN"`
	EventBusDSN    string `env:"EVENTBUS_DSN"`
	LLMBaseURL     string `env:"LLM_BASE_URL"`
	LLMAPIKey      string `env:"LLM_API_KEY"`
	LLMModel       string `env:"LLM_MODEL,default=gpt-4o-mini"`
	CostEstimatorURL string `env:"COST_ESTIMATOR_URL"`
	RLSServiceURL    string `env:"RLS_SERVICE_URL"`
	JWTSecret        string `env:"JWT_SECRET"`
	CheckpointTTLHours int  `env:"CHECKPOINT_TTL_HOURS,default=168" yaml:"checkpoint_ttl_hours"`

	// Connections names the dialect-keyed backends the Executor Facade
	// dispatches to (spec §4.6, GET /connections). Awkward to express as
	// flat env vars, so it is YAML-overlay only like role_limits.
	Connections []ConnectionConfig `yaml:"connections"`
}

// ConnectionConfig names one configured database backend (spec §6
// "database_type ∈ {oracle,postgres,doris}", GET /connections).
type ConnectionConfig struct {
	Name         string `yaml:"name"`
	DatabaseType string `yaml:"database_type"`
	DSN          string `yaml:"dsn"`
	OracleCmd    string `yaml:"oracle_cmd"`
	OracleArgs   []string `yaml:"oracle_args"`
}

// defaultApprovalRiskLevels is applied when no YAML overlay sets one,
// escalating high and critical risk levels.
var defaultApprovalRiskLevels = []string{"high", "critical"}

// Load builds a Config from environment variables (via envdecode), an
// optional .env file at envFile, and an optional YAML overlay at
// yamlFile for the list/map-shaped options envdecode cannot express.
func Load(envFile, yamlFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !isNoTargetFieldsErr(err) {
		return nil, fmt.Errorf("config: decoding environment: %w", err)
	}

	if yamlFile != "" {
		raw, err := os.ReadFile(yamlFile)
		if err != nil {
			if os.IsNotExist(err) {
				yamlFile = ""
			} else {
				return nil, fmt.Errorf("config: reading yaml overlay: %w", err)
			}
		}
		if yamlFile != "" {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing yaml overlay: %w", err)
			}
		}
	}

	if len(cfg.ApprovalRiskLevelsThatRequire) == 0 {
		cfg.ApprovalRiskLevelsThatRequire = defaultApprovalRiskLevels
	}

	return cfg, nil
}

// isNoTargetFieldsErr treats envdecode's "no target fields" as benign;
// it fires when a struct has no `env:` tags left to decode, which is not
// an error for our mixed env+yaml struct.
func isNoTargetFieldsErr(err error) bool {
	return strings.Contains(err.Error(), "no target fields")
}

// RequiresApproval reports whether riskLevel is in the configured
// escalation list (spec §6 approval_risk_levels_that_require).
func (c *Config) RequiresApproval(riskLevel string) bool {
	for _, lvl := range c.ApprovalRiskLevelsThatRequire {
		if strings.EqualFold(lvl, riskLevel) {
			return true
		}
	}
	return false
}

// IsSensitiveTable reports whether name appears in the configured
// sensitive-tables list (spec §6 sensitive_tables[]).
func (c *Config) IsSensitiveTable(name string) bool {
	for _, t := range c.SensitiveTables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// RoleLimitFor returns the configured limits for role, falling back to a
// conservative default when the role is unconfigured.
func (c *Config) RoleLimitFor(role string) RoleLimits {
	if rl, ok := c.RoleLimits[role]; ok {
		return rl
	}
	return RoleLimits{MaxTables: 5, MaxJoins: 4, MaxRows: 1000, DailyQueryQuota: 100}
}
