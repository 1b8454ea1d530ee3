package photesthesis

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by FromEnv. All take unsigned
// 64-bit decimals, or hex with an 0x prefix.
const (
	EnvExpansionSteps   = "PHOTESTHESIS_EXPANSION_STEPS"
	EnvKPathLength      = "PHOTESTHESIS_KPATH_LENGTH"
	EnvRandomDepth      = "PHOTESTHESIS_RANDOM_DEPTH"
	EnvRandomSeed       = "PHOTESTHESIS_RANDOM_SEED"
	EnvVerbose          = "PHOTESTHESIS_VERBOSE"
	EnvTestHash         = "PHOTESTHESIS_TEST_HASH"
	EnvStabilityRetries = "PHOTESTHESIS_STABILITY_RETRIES"
	// EnvConfigFile optionally names a YAML file loaded as a base
	// layer underneath the other variables.
	EnvConfigFile = "PHOTESTHESIS_CONFIG"
)

// Config bundles the run-time knobs of Administer. The zero value
// leaves every knob unset; set knobs override Administer's arguments.
type Config struct {
	ExpansionSteps   *uint64 `yaml:"expansion_steps"`
	KPathLength      *uint64 `yaml:"k_path_length"`
	RandomDepth      *uint64 `yaml:"random_depth"`
	RandomSeed       *uint64 `yaml:"random_seed"`
	Verbose          *uint64 `yaml:"verbose"`
	TestHash         *uint64 `yaml:"test_hash"`
	StabilityRetries *uint64 `yaml:"stability_retries"`
}

// parseEnvNum accepts decimal or 0x-prefixed hex.
func parseEnvNum(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envNum(key string) *uint64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, ok := parseEnvNum(v); ok {
			return &n
		}
	}
	return nil
}

// FromEnv builds a Config from the PHOTESTHESIS_* environment. When
// PHOTESTHESIS_CONFIG names a YAML file its contents form the base
// layer and individual variables override it.
func FromEnv() Config {
	var cfg Config
	if path := os.Getenv(EnvConfigFile); path != "" {
		if fileCfg, err := LoadConfigFile(path); err == nil {
			cfg = fileCfg
		}
	}
	overlay := Config{
		ExpansionSteps:   envNum(EnvExpansionSteps),
		KPathLength:      envNum(EnvKPathLength),
		RandomDepth:      envNum(EnvRandomDepth),
		RandomSeed:       envNum(EnvRandomSeed),
		Verbose:          envNum(EnvVerbose),
		TestHash:         envNum(EnvTestHash),
		StabilityRetries: envNum(EnvStabilityRetries),
	}
	cfg.merge(overlay)
	return cfg
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, Issue{Code: CodeParseError, Message: "bad config file", Offset: -1, Cause: err}
	}
	return cfg, nil
}

// merge overlays set fields of other onto c.
func (c *Config) merge(other Config) {
	if other.ExpansionSteps != nil {
		c.ExpansionSteps = other.ExpansionSteps
	}
	if other.KPathLength != nil {
		c.KPathLength = other.KPathLength
	}
	if other.RandomDepth != nil {
		c.RandomDepth = other.RandomDepth
	}
	if other.RandomSeed != nil {
		c.RandomSeed = other.RandomSeed
	}
	if other.Verbose != nil {
		c.Verbose = other.Verbose
	}
	if other.TestHash != nil {
		c.TestHash = other.TestHash
	}
	if other.StabilityRetries != nil {
		c.StabilityRetries = other.StabilityRetries
	}
}

func orDefault(p *uint64, def uint64) uint64 {
	if p != nil {
		return *p
	}
	return def
}
