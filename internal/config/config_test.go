package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"image-optimizer-go/internal/codec"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.InputGlob() != "raw/*.{jpg,png}" {
		t.Errorf("InputGlob() = %q", cfg.InputGlob())
	}
	if cfg.OutputDirectory != "min" || cfg.ManifestPath != "images.json" {
		t.Errorf("unexpected output defaults: %q %q", cfg.OutputDirectory, cfg.ManifestPath)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.MaxSize != 10 || cfg.Logging.MaxBackups != 3 || !cfg.Logging.Compress {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if lc := cfg.LoggerConfig(); !lc.Console || lc.MaxAge != 30 {
		t.Errorf("unexpected logger config: %+v", lc)
	}

	opts := cfg.CodecOptions()
	want := codec.Options{
		JPEGQuality: 60,
		PNGQuality:  codec.QualityRange{Min: 0.6, Max: 0.8},
		Threshold:   1.0,
	}
	if opts != want {
		t.Errorf("CodecOptions() = %+v, want %+v", opts, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing input", func(c *Config) { c.InputDirectory = "" }, false},
		{"missing output", func(c *Config) { c.OutputDirectory = "" }, false},
		{"missing manifest", func(c *Config) { c.ManifestPath = "" }, false},
		{"same directories", func(c *Config) { c.OutputDirectory = "./raw/" }, false},
		{"jpeg quality too high", func(c *Config) { c.Compression.JPEGQuality = 101 }, false},
		{"png range inverted", func(c *Config) { c.Compression.PNGQuality = []float64{0.9, 0.5} }, false},
		{"png range single value", func(c *Config) { c.Compression.PNGQuality = []float64{0.5} }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, false},
		{"empty pattern gets default", func(c *Config) { c.InputPattern = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.want {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.want)
			}
		})
	}
}

func TestValidateInvalidOptionsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.PNGQuality = []float64{0.2, 1.5}
	if err := cfg.Validate(); !errors.Is(err, codec.ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestValidateNormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Manifest.Extensions = []string{".JPG", " png ", "", "webp"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	want := []string{"jpg", "png", "webp"}
	if !reflect.DeepEqual(cfg.Manifest.Extensions, want) {
		t.Errorf("extensions = %v, want %v", cfg.Manifest.Extensions, want)
	}

	cfg.Manifest.Extensions = nil
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Manifest.Extensions) != 5 {
		t.Errorf("empty extensions should fall back to defaults, got %v", cfg.Manifest.Extensions)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `input_directory: assets/raw
input_pattern: "**/*.{jpg,jpeg,png}"
output_directory: assets/min
manifest_path: assets/images.json
compression:
  jpeg_quality: 75
  png_quality: [0.5, 0.9]
  max_dimension: 1920
  workers: 3
manifest:
  extensions: [jpg, png]
  pretty: true
metadata:
  preserve: true
logging:
  level: debug
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.InputGlob() != "assets/raw/**/*.{jpg,jpeg,png}" {
		t.Errorf("InputGlob() = %q", cfg.InputGlob())
	}
	opts := cfg.CodecOptions()
	if opts.JPEGQuality != 75 || opts.PNGQuality.Min != 0.5 || opts.PNGQuality.Max != 0.9 {
		t.Errorf("unexpected codec options: %+v", opts)
	}
	if opts.MaxDimension != 1920 || opts.Workers != 3 || opts.Threshold != 1.0 {
		t.Errorf("unexpected codec options: %+v", opts)
	}
	if !cfg.Manifest.Pretty || !reflect.DeepEqual(cfg.Manifest.Extensions, []string{"jpg", "png"}) {
		t.Errorf("unexpected manifest config: %+v", cfg.Manifest)
	}
	if !cfg.Metadata.Preserve || cfg.Metadata.SoftwareTag != "image-optimizer" {
		t.Errorf("unexpected metadata config: %+v", cfg.Metadata)
	}
	if cfg.Logging.Level != "debug" || cfg.Server.Port != 9090 {
		t.Errorf("unexpected logging/server config: %+v %+v", cfg.Logging, cfg.Server)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("output_directory: dist\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IMAGE_OPTIMIZER_OUTPUT_DIRECTORY", "public/min")
	t.Setenv("IMAGE_OPTIMIZER_COMPRESSION_JPEG_QUALITY", "80")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.OutputDirectory != "public/min" {
		t.Errorf("OutputDirectory = %q, want env override", cfg.OutputDirectory)
	}
	if cfg.Compression.JPEGQuality != 80 {
		t.Errorf("JPEGQuality = %d, want 80", cfg.Compression.JPEGQuality)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("compression:\n  jpeg_quality: 500\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected validation error for jpeg_quality 500")
	}
}
