package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"

	"roomcrypt/internal/facade"
	"roomcrypt/internal/store"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	envPrefix      = "ROOMCRYPT"
	configName     = "roomcrypt"
	homeDirName    = ".roomcrypt"
	minPassphrase  = 12
	defaultPrekeys = 50
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string       `mapstructure:"home"` // config directory, e.g. $HOME/.roomcrypt
	UserID   string       `mapstructure:"user_id"`
	DeviceID string       `mapstructure:"device_id"`
	Store    StoreConfig  `mapstructure:"store"`
	Log      LogConfig    `mapstructure:"log"`
	Crypto   CryptoConfig `mapstructure:"crypto"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend        string `mapstructure:"backend"`
	Dir            string `mapstructure:"dir"` // file backend; defaults to <home>/store
	RedisURL       string `mapstructure:"redis_url"`
	RedisNamespace string `mapstructure:"redis_namespace"`
	PostgresURL    string `mapstructure:"postgres_url"`
	// Passphrase, when set, seals every record at rest.
	Passphrase string `mapstructure:"passphrase"`
	// KDF derives the sealing key of a new keyspace: scrypt or argon2id.
	KDF string `mapstructure:"kdf"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CryptoConfig struct {
	RequireVerification bool          `mapstructure:"require_verification"`
	RotationPeriod      time.Duration `mapstructure:"rotation_period"`
	RotationMessages    uint32        `mapstructure:"rotation_messages"`
	UndecryptableWindow time.Duration `mapstructure:"undecryptable_window"`
	PendingLimit        int           `mapstructure:"pending_limit"`
	PrekeyBatch         int           `mapstructure:"prekey_batch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("home", "")
	v.SetDefault("user_id", "")
	v.SetDefault("device_id", "")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", "")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_namespace", "roomcrypt")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.passphrase", "")
	v.SetDefault("store.kdf", string(store.KDFScrypt))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("crypto.require_verification", false)
	v.SetDefault("crypto.rotation_period", 7*24*time.Hour)
	v.SetDefault("crypto.rotation_messages", 100)
	v.SetDefault("crypto.undecryptable_window", facade.DefaultUndecryptableWindow)
	v.SetDefault("crypto.pending_limit", facade.DefaultPendingLimit)
	v.SetDefault("crypto.prekey_batch", defaultPrekeys)
}

// LoadConfig reads the config file at path, or roomcrypt.yaml from the
// working directory or $HOME/.roomcrypt when path is empty, then applies
// ROOMCRYPT_* environment overrides. A missing default config file is not
// an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, homeDirName))
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, "app.LoadConfig", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, "app.LoadConfig", err)
	}
	if cfg.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, "app.LoadConfig", err)
		}
		cfg.Home = filepath.Join(dir, homeDirName)
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(cfg.Home, "store")
	}
	return cfg, nil
}

// Validate reports the first problem with cfg.
func (c Config) Validate() error {
	const op = "app.Config"
	invalid := func(msg string) error {
		return cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, msg)
	}

	if c.UserID == "" || c.DeviceID == "" {
		return invalid("user_id and device_id are required")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Dir == "" {
			return invalid("store.dir is required for the file backend")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return invalid("store.redis_url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.PostgresURL == "" {
			return invalid("store.postgres_url is required for the postgres backend")
		}
	default:
		return invalid("unknown store.backend " + c.Store.Backend)
	}
	if c.Store.Passphrase != "" && !isSecurePassphrase(c.Store.Passphrase) {
		return invalid("store.passphrase needs 12+ characters mixing upper and lower case, digits and symbols")
	}
	switch store.KDF(c.Store.KDF) {
	case "", store.KDFScrypt, store.KDFArgon2id:
	default:
		return invalid("store.kdf must be scrypt or argon2id")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json")
	}
	if c.Crypto.RotationPeriod < 0 || c.Crypto.UndecryptableWindow < 0 {
		return invalid("durations must not be negative")
	}
	if c.Crypto.PendingLimit < 0 || c.Crypto.PrekeyBatch < 0 {
		return invalid("limits must not be negative")
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphrase {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
