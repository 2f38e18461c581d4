package pipeline

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
)

// Config is the file form of the solver settings plus cache placement.
//
//	backend = "pbsat"
//	lower_bound = 0.0
//	time_limit = 30
//	warm_start = true
//
//	[cache]
//	dir = "/var/cache/fragtree"
//	redis_addr = "localhost:6379"
type Config struct {
	Options
	Cache CacheConfig `toml:"cache"`
}

// CacheConfig selects the cache backend. RedisAddr wins over Dir.
type CacheConfig struct {
	Disabled  bool   `toml:"disabled"`
	Dir       string `toml:"dir"`
	RedisAddr string `toml:"redis_addr"`
	TTL       string `toml:"ttl"`
}

// LoadConfig reads a TOML config file. Unknown keys are rejected so that
// typos do not silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	if err := ferrors.ValidatePath(path); err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, ferrors.Wrap(ferrors.ErrCodeFileNotFound, err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML config data.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, ferrors.Wrap(ferrors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, ferrors.New(ferrors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}
