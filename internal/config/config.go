package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures the runtime knobs shared by the server and the CLI.
type Config struct {
	Port         string
	ModelPath    string
	MetadataPath string
	LabelsPath   string
	OrtLibrary   string

	Threshold      float64
	ImageSize      int
	MaxUploadMB    int
	MaxImagePixels int

	LogLevel  string
	LogFormat string
}

// Defaults resolves the bundled assets under <root>/models.
func Defaults(root string) Config {
	modelsDir := filepath.Join(root, "models")
	return Config{
		Port:         "8080",
		ModelPath:    filepath.Join(modelsDir, "model.onnx"),
		MetadataPath: filepath.Join(modelsDir, "model_metadata.json"),
		LabelsPath:   filepath.Join(modelsDir, "labels.txt"),
		Threshold:    0.6,
		MaxUploadMB:  10,
		// 25 megapixels, about 100MB once expanded to RGBA.
		MaxImagePixels: 25_000_000,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// ProjectRoot is the working directory, stepping out of cmd/<name> when a
// binary is run from its own source directory.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "../..")
	}
	return filepath.Clean(wd), nil
}

// Load builds the config from defaults, an optional .env file, the
// environment and finally command line flags, then validates it.
func Load(name string, args []string) (*Config, *flag.FlagSet, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, nil, err
	}

	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults(root)
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, fs, nil
}

// RegisterFlags binds every field to a flag defaulting to its current value.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "path to the ONNX model")
	fs.StringVar(&c.MetadataPath, "metadata", c.MetadataPath, "path to the optional model metadata JSON")
	fs.StringVar(&c.LabelsPath, "labels", c.LabelsPath, "path to the optional labels file")
	fs.StringVar(&c.OrtLibrary, "ort-lib", c.OrtLibrary, "path to the onnxruntime shared library")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "minimum confidence for a confident label")
	fs.IntVar(&c.ImageSize, "image-size", c.ImageSize, "square input resolution (0 = from metadata)")
	fs.IntVar(&c.MaxUploadMB, "max-upload-mb", c.MaxUploadMB, "maximum image upload size in MB")
	fs.IntVar(&c.MaxImagePixels, "max-image-pixels", c.MaxImagePixels, "maximum width*height of a decoded image")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "json or text")
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"PORT":            &c.Port,
		"MODEL_PATH":      &c.ModelPath,
		"METADATA_PATH":   &c.MetadataPath,
		"LABELS_PATH":     &c.LabelsPath,
		"ONNXRUNTIME_LIB": &c.OrtLibrary,
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_FORMAT":      &c.LogFormat,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CONFIDENCE_THRESHOLD"); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CONFIDENCE_THRESHOLD %q: %w", v, err)
		}
		c.Threshold = parsed
	}
	ints := map[string]*int{
		"IMAGE_SIZE":       &c.ImageSize,
		"MAX_UPLOAD_MB":    &c.MaxUploadMB,
		"MAX_IMAGE_PIXELS": &c.MaxImagePixels,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = parsed
		}
	}
	return nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return errors.New("model path must be set")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0,1] (got %v)", c.Threshold)
	}
	if c.ImageSize < 0 {
		return fmt.Errorf("image_size must be >= 0 (got %d)", c.ImageSize)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0 (got %d)", c.MaxUploadMB)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max_image_pixels must be > 0 (got %d)", c.MaxImagePixels)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text (got %q)", c.LogFormat)
	}
	return nil
}

// MaxUploadBytes is the multipart memory limit for image uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// NewLogger builds the slog logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
