package config

import (
	"io/fs"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/wbip.yaml"
)

// Config is loaded from defaults, then the YAML file named by CONFIG_FILE, then
// environment variables (SERVER_PORT overrides server_port).
type Config struct {
	Environment string `koanf:"environment" default:"production"`
	Profile     string `koanf:"profile" default:"standard"`
	Hostname    string `koanf:"-"`

	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"true"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`

	ServerHost string `koanf:"server_host" default:"0.0.0.0"`
	ServerPort int    `koanf:"server_port" default:"8081"`

	UpstreamBaseURL        string        `koanf:"upstream_base_url" default:"https://www.instapaper.com"`
	UpstreamConsumerKey    string        `koanf:"upstream_consumer_key" required:"true"`
	UpstreamConsumerSecret string        `koanf:"upstream_consumer_secret" required:"true"`
	UpstreamRateLimit      float64       `koanf:"upstream_rate_limit" default:"2"`
	UpstreamRateBurst      int           `koanf:"upstream_rate_burst" default:"5"`
	UpstreamTimeout        time.Duration `koanf:"upstream_timeout" default:"30s"`
	ListPerPage            int           `koanf:"list_per_page" default:"30"`

	EnrichmentProvider string        `koanf:"enrichment_provider"`
	EnrichmentURL      string        `koanf:"enrichment_url" default:"http://postlight:3000"`
	EnrichmentTimeout  time.Duration `koanf:"enrichment_timeout" default:"10s"`
	DomainMapFile      string        `koanf:"domain_map_file" default:"domain_map.json"`

	IncludeTags      bool          `koanf:"include_tags"`
	IncludeLeadImage bool          `koanf:"include_lead_image"`
	ImageMaxCount    int           `koanf:"image_max_count"`
	ImageMaxWidth    int           `koanf:"image_max_width" default:"1000"`
	ImageMaxHeight   int           `koanf:"image_max_height" default:"1000"`
	ImageGreyscale   bool          `koanf:"image_greyscale" default:"true"`
	ImageJPEGQuality int           `koanf:"image_jpeg_quality" default:"75"`
	ImageTimeout     time.Duration `koanf:"image_timeout" default:"3050ms"`
	ImageMaxBytes    int64         `koanf:"image_max_bytes" default:"20971520"`
	BookLanguage     string        `koanf:"book_language" default:"en"`

	CacheDir           string `koanf:"cache_dir" default:"/tmp"`
	CacheMaxSizeBytes  int64  `koanf:"cache_max_size_bytes"`
	CachePruneSchedule string `koanf:"cache_prune_schedule" default:"@hourly"`
	ExportCacheControl string `koanf:"export_cache_control"`

	AllowRegistration bool `koanf:"allow_registration" default:"true"`
}

// New loads the full server configuration.
func New() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := validateRequired(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewForMigrations loads the configuration for tools that only touch the
// database. Upstream credentials are not required.
func NewForMigrations() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := validateRequired(cfg, "database_file_path"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithStack(err)
	}

	keys := knownKeys()
	err = k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := keys[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if cfg.Environment == "development" {
		loadDevelopmentConfig(cfg, k)
	}

	if err := applyProfile(cfg, k); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a fully populated config that never touches the
// environment or the filesystem.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.Environment = "test"
	cfg.Hostname = "test"
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.ServerHost = "127.0.0.1"
	cfg.UpstreamConsumerKey = "test-consumer-key"
	cfg.UpstreamConsumerSecret = "test-consumer-secret"
	cfg.UpstreamRateLimit = 1000
	cfg.UpstreamRateBurst = 1000
	_ = applyProfile(cfg, koanf.New("."))
	return cfg
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("koanf")
		if tag != "" && tag != "-" {
			keys[tag] = struct{}{}
		}
	}
	return keys
}

// validateRequired checks the fields tagged required. When only is given, just
// those keys are checked.
func validateRequired(cfg *Config, only ...string) error {
	var missing []string
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" || !v.Field(i).IsZero() {
			continue
		}
		key := toSnakeCase(field.Name)
		if len(only) > 0 && !slices.Contains(only, key) {
			continue
		}
		missing = append(missing, strings.ToUpper(key)+" ("+key+")")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
