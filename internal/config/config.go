package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FML_MODS_DIR_PATH.
const EnvPrefix = "FML"

// Config holds all runtime configuration for fml.
// Values are populated from config.yml, FML_* env vars, and CLI flags.
type Config struct {
	ModsDirPath      string        `mapstructure:"mods_dir_path"`
	ServerConfigPath string        `mapstructure:"server_config_path"`
	PortalURL        string        `mapstructure:"portal_url"`
	CacheDir         string        `mapstructure:"cache_dir"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`     // catalog requests
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"` // one archive transfer
	Retries          int           `mapstructure:"retries"`
	Verbose          bool          `mapstructure:"verbose"`
}

// File is what `fml init` writes to disk.
type File struct {
	ModsDirPath      string `yaml:"mods_dir_path"`
	ServerConfigPath string `yaml:"server_config_path"`
}

// SetDefaults registers the built-in defaults with viper.
func SetDefaults() {
	viper.SetDefault("mods_dir_path", "/opt/factorio/mods/")
	viper.SetDefault("server_config_path", "/opt/factorio/config/server-settings.json")
	viper.SetDefault("portal_url", "https://mods.factorio.com")
	viper.SetDefault("cache_dir", "~/.cache/fml")
	viper.SetDefault("cache_ttl", "1h")
	viper.SetDefault("http_timeout", "60s")
	viper.SetDefault("download_timeout", "10m")
	viper.SetDefault("retries", 3)
	viper.SetDefault("verbose", false)
}

// Init points viper at the config file and the environment. cfgFile
// overrides the default location. A missing default file is not an error,
// a missing explicit one is.
func Init(cfgFile string) error {
	return initViper(cfgFile, true)
}

// InitForWrite is Init for commands that create the config file, so a
// missing explicit file is not an error either.
func InitForWrite(cfgFile string) error {
	return initViper(cfgFile, false)
}

func initViper(cfgFile string, requireExplicit bool) error {
	SetDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if _, err := os.Stat(cfgFile); !requireExplicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil
		}
		viper.SetConfigFile(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", viper.ConfigFileUsed(), err)
	}
	return nil
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	SetDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Retries < 0 {
		return Config{}, fmt.Errorf("retries must not be negative, got %d", cfg.Retries)
	}

	var err error
	if cfg.ModsDirPath, err = ExpandHome(cfg.ModsDirPath); err != nil {
		return Config{}, err
	}
	if cfg.ServerConfigPath, err = ExpandHome(cfg.ServerConfigPath); err != nil {
		return Config{}, err
	}
	if cfg.CacheDir, err = ExpandHome(cfg.CacheDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath is ~/.config/fml/config.yml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fml", "config.yml"), nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// WriteFile saves f as yaml at path, creating parent directories.
func WriteFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming config: %w", err)
	}
	return nil
}

// ReadFile loads a config file written by WriteFile.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// Prompt asks for each path on out, reading answers from in. An empty
// answer keeps the value from defaults.
func Prompt(in io.Reader, out io.Writer, defaults File) (File, error) {
	sc := bufio.NewScanner(in)
	ask := func(label, def string) (string, error) {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return def, nil
		}
		if answer := strings.TrimSpace(sc.Text()); answer != "" {
			return answer, nil
		}
		return def, nil
	}

	var f File
	var err error
	if f.ModsDirPath, err = ask("Mods directory", defaults.ModsDirPath); err != nil {
		return File{}, err
	}
	if f.ServerConfigPath, err = ask("Server settings file", defaults.ServerConfigPath); err != nil {
		return File{}, err
	}
	return f, nil
}
