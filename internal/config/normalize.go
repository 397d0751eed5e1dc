package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNaming()
	c.normalizeMimeTypes()
	if err := c.normalizeBlob(); err != nil {
		return err
	}
	if err := c.normalizeRecords(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.TmpDir, err = expandPath(c.Paths.TmpDir); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNaming() {
	keys := make([]string, 0, len(c.Naming.SlugKeys))
	for _, key := range c.Naming.SlugKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	c.Naming.SlugKeys = keys
	if c.Naming.SlugDelim == "" {
		c.Naming.SlugDelim = defaultSlugDelim
	}
	c.Naming.Compression = strings.Trim(strings.TrimSpace(c.Naming.Compression), ".")
	c.Naming.Root = strings.Trim(strings.TrimSpace(c.Naming.Root), "/")
}

func (c *Config) normalizeMimeTypes() {
	normalized := make(map[string]string, len(c.MimeTypes))
	for format, mime := range c.MimeTypes {
		format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
		if format == "" {
			continue
		}
		normalized[format] = strings.TrimSpace(mime)
	}
	c.MimeTypes = normalized
}

func (c *Config) normalizeBlob() error {
	c.Blob.Backend = strings.ToLower(strings.TrimSpace(c.Blob.Backend))
	if c.Blob.Backend == "" {
		c.Blob.Backend = BlobBackendLocal
	}
	var err error
	if c.Blob.Dir, err = expandPath(c.Blob.Dir); err != nil {
		return fmt.Errorf("blob.dir: %w", err)
	}
	c.Blob.Bucket = strings.TrimSpace(c.Blob.Bucket)
	if c.Blob.Bucket == "" {
		if value, ok := os.LookupEnv("BNPL_S3_BUCKET"); ok {
			c.Blob.Bucket = strings.TrimSpace(value)
		}
	}
	c.Blob.Region = strings.TrimSpace(c.Blob.Region)
	if c.Blob.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok {
			c.Blob.Region = strings.TrimSpace(value)
		}
	}
	if c.Blob.Backend == BlobBackendS3 && c.Blob.Region == "" {
		c.Blob.Region = defaultBlobRegionHint
	}
	c.Blob.Endpoint = strings.TrimSpace(c.Blob.Endpoint)
	return nil
}

func (c *Config) normalizeRecords() error {
	var err error
	if c.Records.Path, err = expandPath(c.Records.Path); err != nil {
		return fmt.Errorf("records.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("BNPL_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTools() {
	c.Tools.Fpcalc = fallback(c.Tools.Fpcalc, defaultFpcalcBinary)
	c.Tools.FFprobe = fallback(c.Tools.FFprobe, defaultFFprobeBinary)
	c.Tools.FFmpeg = fallback(c.Tools.FFmpeg, defaultFFmpegBinary)
	c.Tools.Freesound = fallback(c.Tools.Freesound, defaultFreesoundTool)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func fallback(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}
