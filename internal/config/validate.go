package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNaming(); err != nil {
		return err
	}
	if err := c.validateBlob(); err != nil {
		return err
	}
	if err := c.validateRecords(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if c.Pool.Size <= 0 {
		return errors.New("pool.size must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateNaming() error {
	if c.Naming.UIDLength <= 0 || c.Naming.UIDLength > 40 {
		return fmt.Errorf("naming.uid_length must be between 1 and 40, got %d", c.Naming.UIDLength)
	}
	return nil
}

func (c *Config) validateBlob() error {
	switch c.Blob.Backend {
	case BlobBackendLocal:
		if c.Blob.Dir == "" {
			return errors.New("blob.dir must be set when blob.backend is \"local\"")
		}
	case BlobBackendS3:
		if c.Blob.Bucket == "" {
			return errors.New("blob.bucket must be set when blob.backend is \"s3\" (or set BNPL_S3_BUCKET)")
		}
	default:
		return fmt.Errorf("blob.backend: unsupported value %q", c.Blob.Backend)
	}
	return nil
}

func (c *Config) validateRecords() error {
	if strings.TrimSpace(c.Records.Path) == "" {
		return errors.New("records.path must be set")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts <= 0 {
		return errors.New("retry.attempts must be positive")
	}
	if c.Retry.WaitSeconds < 0 {
		return errors.New("retry.wait_seconds must not be negative")
	}
	if c.Retry.Backoff < 1 {
		return errors.New("retry.backoff must be at least 1")
	}
	if c.Retry.MaxWaitSeconds < 0 {
		return errors.New("retry.max_wait_seconds must not be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
