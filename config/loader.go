package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FLOW"

// Resolver handles finding config and env files for a binary.
type Resolver struct {
	Fs afero.Fs
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles finds config and env files for a binary.
// Returns explicit paths if provided, otherwise searches for them.
func (r *Resolver) ResolveFiles(name string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = r.first(configSearchPaths(name))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = r.first(envSearchPaths(name))
	}
	return resolved
}

func (r *Resolver) first(paths []string) string {
	for _, path := range paths {
		if ok, _ := afero.Exists(r.Fs, path); ok {
			return path
		}
	}
	return ""
}

func configSearchPaths(name string) []string {
	return []string{
		fmt.Sprintf("./cmd/%s/config.yml", name),
		fmt.Sprintf("../cmd/%s/config.yml", name),
		fmt.Sprintf("../../cmd/%s/config.yml", name),
		"./config/config.yml",
		"../config/config.yml",
		"./config.yml",
	}
}

func envSearchPaths(name string) []string {
	var paths []string
	for _, file := range []string{".env." + name, ".env"} {
		for _, dir := range []string{filepath.Join("cmd", name), "config", "."} {
			paths = append(paths, filepath.Join(dir, file))
		}
	}
	return paths
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	Fs         afero.Fs
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFs sets the filesystem config and env files are read from.
func WithFs(fs afero.Fs) LoaderOption {
	return func(lc *LoaderConfig) { lc.Fs = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load reads configuration for the named binary into cfg, applies defaults
// and validates the result.
//
// Precedence, lowest first: built-in defaults, config.yml, .env, process
// environment.
func Load(name string, cfg *Config, opts ...LoaderOption) error {
	lc := LoaderConfig{Fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&lc)
	}

	resolver := &Resolver{Fs: lc.Fs}
	files := resolver.ResolveFiles(name, lc)

	v := viper.New()
	v.SetFs(lc.Fs)
	setDefaults(v, name)

	if files.ConfigFile != "" {
		if ok, _ := afero.Exists(lc.Fs, files.ConfigFile); ok {
			v.SetConfigFile(files.ConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config file %s: %w", files.ConfigFile, err)
			}
		}
	}

	if files.EnvFile != "" {
		if err := loadEnvFile(lc.Fs, files.EnvFile); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config for %s: %w", name, err)
	}

	cfg.ApplyDefaults()
	return cfg.Validate()
}

// loadEnvFile exports the variables of a .env file that are not already set,
// matching godotenv.Load semantics but reading through fs.
func loadEnvFile(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file %s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}
	for k, val := range vars {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper, name string) {
	v.SetDefault("name", name)
	v.SetDefault("environment", "development")

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.timestamp", true)
	v.SetDefault("logging.caller", false)

	v.SetDefault("pipeline.producers", 2)
	v.SetDefault("pipeline.consumers", 3)
	v.SetDefault("pipeline.capacity", 5)
	v.SetDefault("pipeline.batch_size", 10)

	v.SetDefault("transform.hash", "sha256")
	v.SetDefault("transform.cipher", "aes-cbc")
	v.SetDefault("transform.compression", "gzip")
	v.SetDefault("transform.compression_level", 0)
	v.SetDefault("transform.kdf_hash", "sha256")
	v.SetDefault("transform.kdf_iterations", 100_000)
	v.SetDefault("transform.salt_size", 16)
	v.SetDefault("transform.output_dir", ".")

	v.SetDefault("observability.endpoint", "")
	v.SetDefault("observability.insecure", true)
	v.SetDefault("observability.sample_rate", 1.0)
}
