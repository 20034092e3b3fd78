package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-optimizer-go/internal/codec"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/manifest"
	"image-optimizer-go/internal/metadata"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	InputDirectory  string            `mapstructure:"input_directory"`
	InputPattern    string            `mapstructure:"input_pattern"`
	OutputDirectory string            `mapstructure:"output_directory"`
	ManifestPath    string            `mapstructure:"manifest_path"`
	Compression     CompressionConfig `mapstructure:"compression"`
	Manifest        ManifestConfig    `mapstructure:"manifest"`
	Metadata        MetadataConfig    `mapstructure:"metadata"`
	Logging         LoggingConfig     `mapstructure:"logging"`
	Server          ServerConfig      `mapstructure:"server"`
}

// CompressionConfig contains codec settings
type CompressionConfig struct {
	JPEGQuality  int       `mapstructure:"jpeg_quality"`
	PNGQuality   []float64 `mapstructure:"png_quality"` // [min, max]
	Threshold    float64   `mapstructure:"threshold"`
	MaxDimension int       `mapstructure:"max_dimension"`
	Workers      int       `mapstructure:"workers"`
}

// ManifestConfig contains manifest generation settings
type ManifestConfig struct {
	Extensions []string `mapstructure:"extensions"`
	Pretty     bool     `mapstructure:"pretty"`
}

// MetadataConfig contains EXIF handling settings
type MetadataConfig struct {
	Preserve      bool   `mapstructure:"preserve"`
	SkipOptimized bool   `mapstructure:"skip_optimized"`
	SoftwareTag   string `mapstructure:"software_tag"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig contains preview server settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	logDefaults := logger.DefaultConfig()
	return &Config{
		InputDirectory:  "raw",
		InputPattern:    "*.{jpg,png}",
		OutputDirectory: "min",
		ManifestPath:    "images.json",
		Compression: CompressionConfig{
			JPEGQuality: 60,
			PNGQuality:  []float64{0.6, 0.8},
			Threshold:   1.0,
		},
		Manifest: ManifestConfig{
			Extensions: append([]string(nil), manifest.DefaultExtensions...),
		},
		Metadata: MetadataConfig{
			SoftwareTag: metadata.DefaultSoftwareTag,
		},
		Logging: LoggingConfig{
			Level:      logDefaults.Level,
			FilePath:   logDefaults.FilePath,
			MaxSize:    logDefaults.MaxSize,
			MaxBackups: logDefaults.MaxBackups,
			MaxAge:     logDefaults.MaxAge,
			Compress:   logDefaults.Compress,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches the default locations; a missing file there is not an error.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-optimizer")
		v.AddConfigPath("/etc/image-optimizer")
	}

	v.SetEnvPrefix("IMAGE_OPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, config)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers every key as a viper default so AutomaticEnv overrides
// reach Unmarshal even when no config file sets them.
func bindEnv(v *viper.Viper, c *Config) {
	v.SetDefault("input_directory", c.InputDirectory)
	v.SetDefault("input_pattern", c.InputPattern)
	v.SetDefault("output_directory", c.OutputDirectory)
	v.SetDefault("manifest_path", c.ManifestPath)
	v.SetDefault("compression.jpeg_quality", c.Compression.JPEGQuality)
	v.SetDefault("compression.png_quality", c.Compression.PNGQuality)
	v.SetDefault("compression.threshold", c.Compression.Threshold)
	v.SetDefault("compression.max_dimension", c.Compression.MaxDimension)
	v.SetDefault("compression.workers", c.Compression.Workers)
	v.SetDefault("manifest.extensions", c.Manifest.Extensions)
	v.SetDefault("manifest.pretty", c.Manifest.Pretty)
	v.SetDefault("metadata.preserve", c.Metadata.Preserve)
	v.SetDefault("metadata.skip_optimized", c.Metadata.SkipOptimized)
	v.SetDefault("metadata.software_tag", c.Metadata.SoftwareTag)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("server.port", c.Server.Port)

	// slices are decoded from viper so a shorter file value replaces the default
	c.Compression.PNGQuality = nil
	c.Manifest.Extensions = nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.InputDirectory == "" {
		return fmt.Errorf("input_directory is required")
	}
	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory is required")
	}
	if c.ManifestPath == "" {
		return fmt.Errorf("manifest_path is required")
	}
	if c.InputPattern == "" {
		c.InputPattern = "*.{jpg,png}"
	}

	if samePath(c.InputDirectory, c.OutputDirectory) {
		return fmt.Errorf("output_directory must differ from input_directory: %s", c.OutputDirectory)
	}

	if len(c.Compression.PNGQuality) != 2 {
		return fmt.Errorf("png_quality must be a [min, max] pair, got %v", c.Compression.PNGQuality)
	}
	if c.Compression.Threshold == 0 {
		c.Compression.Threshold = 1.0
	}
	if err := c.CodecOptions().Validate(); err != nil {
		return err
	}

	c.Manifest.Extensions = normalizeExtensions(c.Manifest.Extensions)
	if len(c.Manifest.Extensions) == 0 {
		c.Manifest.Extensions = normalizeExtensions(manifest.DefaultExtensions)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// InputGlob joins the input directory and pattern into the codec glob.
func (c *Config) InputGlob() string {
	return filepath.ToSlash(filepath.Join(c.InputDirectory, c.InputPattern))
}

// CodecOptions converts the compression settings into codec options.
func (c *Config) CodecOptions() codec.Options {
	opts := codec.Options{
		JPEGQuality:  c.Compression.JPEGQuality,
		Threshold:    c.Compression.Threshold,
		MaxDimension: c.Compression.MaxDimension,
		Workers:      c.Compression.Workers,
	}
	if len(c.Compression.PNGQuality) == 2 {
		opts.PNGQuality = codec.QualityRange{Min: c.Compression.PNGQuality[0], Max: c.Compression.PNGQuality[1]}
	}
	return opts
}

// MetadataOptions converts the metadata settings for the metadata handler.
func (c *Config) MetadataOptions() metadata.Config {
	return metadata.Config{
		Preserve:      c.Metadata.Preserve,
		SkipOptimized: c.Metadata.SkipOptimized,
		SoftwareTag:   c.Metadata.SoftwareTag,
	}
}

// LoggerConfig converts the logging settings for logger.NewLogger.
func (c *Config) LoggerConfig() logger.LoggerConfig {
	return logger.LoggerConfig{
		Level:      c.Logging.Level,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
		Console:    true,
	}
}

// Helper functions

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(expandPath(a))
	absB, errB := filepath.Abs(expandPath(b))
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			normalized = append(normalized, ext)
		}
	}
	return normalized
}
