package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/auscope/vgljobs/internal/observability"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "VGLJOBS"

	// ConfigName is the config file base name (vgljobs.yaml).
	ConfigName = "vgljobs"

	// ConfigFileEnv names an explicit config file.
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps an environment variable onto a config key path.
type envSpec struct {
	Name string
	Path []string
}

func (s envSpec) key() string { return strings.Join(s.Path, ".") }

// Short aliases kept alongside the generated names.
var envAliases = map[string]string{
	EnvPrefix + "_HOST":      "server.host",
	EnvPrefix + "_PORT":      "server.port",
	EnvPrefix + "_LOG_LEVEL": "logging.level",
}

// Defaults applies every default to v.
func Defaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", observability.ProfileStructured)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "vgljobs.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.auth_token", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("storage.provider", "s3")
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.profile", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.force_path_style", false)
	v.SetDefault("storage.max_keys", 1000)
	v.SetDefault("storage.public_url_template", "https://{bucket}.s3.amazonaws.com/{key}")
	v.SetDefault("storage.include", []string{})
	v.SetDefault("storage.exclude", []string{})

	v.SetDefault("catalog.url", "")
	v.SetDefault("catalog.username", "")
	v.SetDefault("catalog.password", "")
	v.SetDefault("catalog.publication_path", "/srv/eng/csw-publication")
	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.requests_per_second", 2.0)
	v.SetDefault("catalog.burst", 1)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.starttls", true)
	v.SetDefault("mail.portal_url", "")
	v.SetDefault("mail.body_template", "")
	v.SetDefault("mail.timeout", "30s")
}

// getEnvSpecs lists one VGLJOBS_<SECTION>_<KEY> variable per config key.
func getEnvSpecs() []envSpec {
	v := viper.New()
	Defaults(v)

	keys := v.AllKeys()
	sort.Strings(keys)
	specs := make([]envSpec, 0, len(keys)+len(envAliases))
	for _, key := range keys {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		specs = append(specs, envSpec{Name: name, Path: strings.Split(key, ".")})
	}
	aliases := make([]string, 0, len(envAliases))
	for name := range envAliases {
		aliases = append(aliases, name)
	}
	sort.Strings(aliases)
	for _, name := range aliases {
		specs = append(specs, envSpec{Name: name, Path: strings.Split(envAliases[name], ".")})
	}
	return specs
}

// getUserConfigPaths lists directories searched for vgljobs.yaml, in order.
func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	return paths
}

// Load builds the configuration. Precedence: runtime overrides > env >
// config file > defaults. The result also becomes the GetConfig value.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	Defaults(v)
	v.SetConfigType("yaml")

	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", explicit, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Aliases win over the generated names when both are set.
	for _, spec := range getEnvSpecs() {
		if _, ok := envAliases[spec.Name]; ok {
			continue
		}
		names := []string{spec.key()}
		for alias, key := range envAliases {
			if key == spec.key() {
				names = append(names, alias)
			}
		}
		names = append(names, spec.Name)
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Profile = strings.ToLower(strings.TrimSpace(c.Logging.Profile))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Storage.Provider = strings.ToLower(strings.TrimSpace(c.Storage.Provider))
	c.Storage.Include = trimAll(c.Storage.Include)
	c.Storage.Exclude = trimAll(c.Storage.Exclude)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Profile {
	case observability.ProfileStructured, observability.ProfileConsole:
	default:
		errs = append(errs, fmt.Errorf("logging.profile %q must be structured or console", c.Logging.Profile))
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for postgres"))
	}
	switch c.Storage.Provider {
	case "s3":
	case "file":
		if c.Storage.BaseDir == "" {
			errs = append(errs, fmt.Errorf("storage.base_dir is required for the file provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q must be s3 or file", c.Storage.Provider))
	}
	if c.Catalog.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("catalog.requests_per_second must not be negative"))
	}
	if c.Mail.Enabled && c.Mail.From == "" {
		errs = append(errs, fmt.Errorf("mail.from is required when mail is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
