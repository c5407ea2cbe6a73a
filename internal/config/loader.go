package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix starts every environment override.
	EnvPrefix = "STYLERANK_"

	maxConfigFileSize = 1024 * 1024
	systemConfigDir   = "/etc/stylerank"
)

// sections are the nested key paths, longest first, so that
// STYLERANK_RETRIEVAL_QDRANT_API_KEY maps to retrieval.qdrant.api_key.
var sections = []string{
	"ranking.blend_weights",
	"ranking.normalization",
	"retrieval.elasticsearch",
	"retrieval.chromem",
	"retrieval.qdrant",
	"cache.redis",
	"retrieval",
	"telemetry",
	"ranking",
	"logging",
	"server",
	"cache",
}

// listKeys hold comma-separated lists when given as environment variables.
var listKeys = map[string]bool{
	"retrieval.elasticsearch.urls": true,
	"ranking.fields":               true,
}

// UserConfigDir is ~/.config/stylerank.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "stylerank"), nil
}

// Load builds the configuration from defaults, the file at path and
// STYLERANK_* environment variables, in increasing precedence. Files ending
// in .toml are read as TOML, everything else as YAML.
//
// An empty path means ~/.config/stylerank/config.yaml, which may be
// absent. Config files must live under ~/.config/stylerank/ or
// /etc/stylerank/, be at most 1MB and have mode 0600 or 0400.
//
// Environment keys drop the prefix and map underscores between sections
// to dots: STYLERANK_RANKING_WEIGHT sets ranking.weight and
// STYLERANK_RETRIEVAL_ELASTICSEARCH_URLS=http://a:9200,http://b:9200 sets
// retrieval.elasticsearch.urls.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		dir, err := UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, err
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		if err := k.Load(tomlProvider{content: content}, nil); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Decoding onto the defaults merges lists element-wise; a configured
	// list replaces the default one.
	if k.Exists("retrieval.elasticsearch.urls") {
		cfg.Retrieval.Elasticsearch.URLs = k.Strings("retrieval.elasticsearch.urls")
	}
	if k.Exists("ranking.fields") {
		cfg.Ranking.Fields = k.Strings("ranking.fields")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps STYLERANK_CACHE_REDIS_ADDR to cache.redis.addr. Unknown
// sections yield an empty key, which koanf skips.
func envKey(name, value string) (string, any) {
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, section := range sections {
		prefix := strings.ReplaceAll(section, ".", "_") + "_"
		if rest, ok := strings.CutPrefix(lower, prefix); ok && rest != "" {
			key := section + "." + rest
			if listKeys[key] {
				return key, splitList(value)
			}
			return key, value
		}
	}
	return "", nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readConfigFile checks the file through the open descriptor so the checked
// file is the one read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/stylerank with mode 0700.
func EnsureConfigDir() error {
	dir, err := UserConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath accepts paths inside the user or system config
// directory, after resolving symlinks.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	userDir, err := UserConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, systemConfigDir} {
		if strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in %s/ or %s/", userDir, systemConfigDir)
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
