package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/streamkit/logger"
)

// Config is the root configuration of a streamkit binary.
type Config struct {
	Name          string              `yaml:"name" mapstructure:"name" validate:"required"`
	Environment   string              `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Logging       logger.Config       `yaml:"logging" mapstructure:"logging"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Transform     TransformConfig     `yaml:"transform" mapstructure:"transform"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// PipelineConfig holds producer/consumer orchestration defaults.
type PipelineConfig struct {
	Producers int `yaml:"producers" mapstructure:"producers" validate:"min=1"`
	Consumers int `yaml:"consumers" mapstructure:"consumers" validate:"min=1"`
	// Capacity of the shared buffer. 0 means unbounded.
	Capacity int `yaml:"capacity" mapstructure:"capacity" validate:"min=0"`
	// BatchSize of 1 selects the identity adapter.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"min=1"`
}

// TransformConfig holds the algorithms used by the pack/unpack chains.
type TransformConfig struct {
	Hash             string `yaml:"hash" mapstructure:"hash" validate:"oneof=md5 sha1 sha256 sha512 blake2b-256 xxh64"`
	Cipher           string `yaml:"cipher" mapstructure:"cipher" validate:"oneof=aes-cbc chacha20"`
	Compression      string `yaml:"compression" mapstructure:"compression" validate:"oneof=gzip zstd lz4"`
	CompressionLevel int    `yaml:"compression_level" mapstructure:"compression_level" validate:"min=0,max=22"`
	KDFHash          string `yaml:"kdf_hash" mapstructure:"kdf_hash" validate:"oneof=sha1 sha256 sha512"`
	KDFIterations    int    `yaml:"kdf_iterations" mapstructure:"kdf_iterations" validate:"min=1000"`
	SaltSize         int    `yaml:"salt_size" mapstructure:"salt_size" validate:"min=8,max=64"`
	OutputDir        string `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
}

// ObservabilityConfig enables OTLP export when Endpoint is set.
type ObservabilityConfig struct {
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// Enabled reports whether an exporter endpoint is configured.
func (c ObservabilityConfig) Enabled() bool {
	return c.Endpoint != ""
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Logging.Level == "" && c.Environment == "development" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()

	if c.Pipeline.Producers == 0 {
		c.Pipeline.Producers = 1
	}
	if c.Pipeline.Consumers == 0 {
		c.Pipeline.Consumers = 1
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 1
	}

	if c.Transform.Hash == "" {
		c.Transform.Hash = "sha256"
	}
	if c.Transform.Cipher == "" {
		c.Transform.Cipher = "aes-cbc"
	}
	if c.Transform.Compression == "" {
		c.Transform.Compression = "gzip"
	}
	if c.Transform.KDFHash == "" {
		c.Transform.KDFHash = "sha256"
	}
	if c.Transform.KDFIterations == 0 {
		c.Transform.KDFIterations = 100_000
	}
	if c.Transform.SaltSize == 0 {
		c.Transform.SaltSize = 16
	}
	if c.Transform.OutputDir == "" {
		c.Transform.OutputDir = "."
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the nested logging configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %s", describe(err))
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Namespace()), rule))
	}
	return strings.Join(parts, "; ")
}
