package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "CLOSESHOP_"

// Duration unmarshals from YAML strings such as "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the server configuration. Values come from an optional YAML file
// and are overridden by CLOSESHOP_* environment variables.
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	BaseURL   string `yaml:"base_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	JWTSecret      string   `yaml:"jwt_secret"`
	AccessTokenTTL Duration `yaml:"access_token_ttl"`
	AdminEmails    []string `yaml:"admin_emails"`

	FCMServerKey    string `yaml:"fcm_server_key"`
	FCMEndpoint     string `yaml:"fcm_endpoint"`
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	VAPIDSubscriber string `yaml:"vapid_subscriber"`

	PostmarkToken string `yaml:"postmark_token"`
	EmailFrom     string `yaml:"email_from"`

	GeocodeBaseURL   string   `yaml:"geocode_base_url"`
	GeocodeUserAgent string   `yaml:"geocode_user_agent"`
	GeocodeCacheTTL  Duration `yaml:"geocode_cache_ttl"`

	SweepInterval Duration `yaml:"sweep_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:             "8080",
		DBPath:           "closeshop.db",
		BaseURL:          "http://localhost:8080",
		LogLevel:         "info",
		LogFormat:        "text",
		AccessTokenTTL:   Duration(time.Hour),
		VAPIDSubscriber:  "mailto:noreply@closeshop.app",
		GeocodeUserAgent: "closeshop/1.0",
		GeocodeCacheTTL:  Duration(24 * time.Hour),
		SweepInterval:    Duration(time.Hour),
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides. lookup is usually os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PORT":               &c.Port,
		"DB_PATH":            &c.DBPath,
		"BASE_URL":           &c.BaseURL,
		"LOG_LEVEL":          &c.LogLevel,
		"LOG_FORMAT":         &c.LogFormat,
		"JWT_SECRET":         &c.JWTSecret,
		"FCM_SERVER_KEY":     &c.FCMServerKey,
		"FCM_ENDPOINT":       &c.FCMEndpoint,
		"VAPID_PUBLIC_KEY":   &c.VAPIDPublicKey,
		"VAPID_PRIVATE_KEY":  &c.VAPIDPrivateKey,
		"VAPID_SUBSCRIBER":   &c.VAPIDSubscriber,
		"POSTMARK_TOKEN":     &c.PostmarkToken,
		"EMAIL_FROM":         &c.EmailFrom,
		"GEOCODE_BASE_URL":   &c.GeocodeBaseURL,
		"GEOCODE_USER_AGENT": &c.GeocodeUserAgent,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"ACCESS_TOKEN_TTL":  &c.AccessTokenTTL,
		"GEOCODE_CACHE_TTL": &c.GeocodeCacheTTL,
		"SWEEP_INTERVAL":    &c.SweepInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = Duration(d)
	}

	if v, ok := lookup(envPrefix + "ADMIN_EMAILS"); ok && v != "" {
		c.AdminEmails = nil
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				c.AdminEmails = append(c.AdminEmails, e)
			}
		}
	}
	return nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("jwt_secret must be at least 32 characters"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access_token_ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("vapid_public_key and vapid_private_key must be set together"))
	}
	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is listed in AdminEmails.
func (c Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}
