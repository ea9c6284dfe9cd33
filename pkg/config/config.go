package config

import (
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/forj-go/pkg/merkle"
)

// Environment variable names for forj server configuration
const (
	EnvForjPort          = "FORJ_PORT"
	EnvForjStoreType     = "FORJ_STORE_TYPE"
	EnvForjDataPath      = "FORJ_DATA_PATH"
	EnvForjRedisAddress  = "FORJ_REDIS_ADDRESS"
	EnvForjRedisPassword = "FORJ_REDIS_PASSWORD"
	EnvForjRedisDB       = "FORJ_REDIS_DB"
	EnvForjRedisPrefix   = "FORJ_REDIS_KEY_PREFIX"
	EnvForjContentURL    = "FORJ_CONTENT_BASE_URL"
	EnvForjVerifyURL     = "FORJ_VERIFY_BASE_URL"
	EnvForjHashScheme    = "FORJ_HASH_SCHEME"
	EnvForjRateLimit     = "FORJ_RATE_LIMIT"
	EnvForjLogFile       = "FORJ_LOG_FILE"
	EnvForjVerbose       = "FORJ_VERBOSE"
)

type StoreType string

func (s StoreType) String() string {
	return string(s)
}

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// GetSupportedStoreTypesString returns supported store types for CLI help
func GetSupportedStoreTypesString() string {
	return strings.Join([]string{
		StoreTypeMemory.String(),
		StoreTypeBadger.String(),
		StoreTypeRedis.String(),
	}, ", ")
}

type HashSchemeName string

const (
	// HashSchemeLegacy is the unprefixed scheme all existing batches use
	HashSchemeLegacy HashSchemeName = merkle.SchemeNameLegacy

	// HashSchemeDomainSeparated prefixes leaf and node hashes with distinct tags
	HashSchemeDomainSeparated HashSchemeName = merkle.SchemeNameDomainSeparated
)

// Defaults
const (
	DefaultPort          = 3001
	DefaultDataPath      = "./data"
	DefaultContentURL    = "http://localhost:3001/content/"
	DefaultVerifyURL     = "http://localhost:3001/verify/"
	DefaultRateLimit     = 20.0
	DefaultRedisDB       = 0
	DefaultMaxUploadSize = 32 << 20
)

// RedisConfig holds the connection settings for the redis store
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"keyPrefix"`
}

// ForjServerConfig represents the complete configuration for a forj server
type ForjServerConfig struct {
	Port int `json:"port"`

	// Storage backing the ledger and content collaborators
	StoreType StoreType    `json:"store_type"`
	DataPath  string       `json:"data_path"`
	Redis     *RedisConfig `json:"redis,omitempty"`

	// Public URL prefixes used when building artifact and verify links
	ContentBaseURL string `json:"content_base_url"`
	VerifyBaseURL  string `json:"verify_base_url"`

	HashScheme HashSchemeName `json:"hash_scheme"`

	// Requests per second accepted by the HTTP API, 0 disables limiting
	RateLimit float64 `json:"rate_limit"`

	MaxUploadSize int64 `json:"max_upload_size"`

	LogFile string `json:"log_file"`
	Debug   bool   `json:"debug"`
	Verbose bool   `json:"verbose"`
}

// Validate validates the forj server configuration
func (c *ForjServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	switch c.StoreType {
	case StoreTypeMemory:
	case StoreTypeBadger:
		if c.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for the badger store"))
		}
	case StoreTypeRedis:
		if c.Redis == nil || c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required for the redis store"))
		} else if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("storeType"), c.StoreType, []string{
			StoreTypeMemory.String(), StoreTypeBadger.String(), StoreTypeRedis.String(),
		}))
	}

	switch c.HashScheme {
	case HashSchemeLegacy, HashSchemeDomainSeparated:
	case "":
		c.HashScheme = HashSchemeLegacy
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashScheme"), c.HashScheme, []string{
			string(HashSchemeLegacy), string(HashSchemeDomainSeparated),
		}))
	}

	for name, raw := range map[string]string{"contentBaseUrl": c.ContentBaseURL, "verifyBaseUrl": c.VerifyBaseURL} {
		if err := validateBaseURL(raw); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(name), raw, err.Error()))
		}
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}

	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	} else if c.MaxUploadSize < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxUploadSize"), c.MaxUploadSize, "must be positive"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if !strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("url must end with /")
	}
	return nil
}
