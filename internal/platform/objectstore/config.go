package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

// Config points at the S3-compatible bucket that mirrors downloaded products.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		Region:   "us-east-1",
		Bucket:   "sentinel-products",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("mirror endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("mirror access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("mirror secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("mirror region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("mirror bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("mirror endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("mirror prefix must be relative: %q", c.Prefix)
	}
	return nil
}
