package config

const (
	defaultConfigPath     = "~/.config/bnpl/config.toml"
	defaultTmpDir         = "~/.local/share/bnpl/tmp"
	defaultLogDir         = "~/.local/share/bnpl/logs"
	defaultDataDir        = "~/.local/share/bnpl"
	defaultBlobDir        = "~/.local/share/bnpl/blobs"
	defaultRecordsPath    = "~/.local/share/bnpl/records.db"
	defaultSlugDelim      = "-"
	defaultUIDLength      = 32
	defaultRoot           = "sounds"
	defaultRetryAttempts  = 3
	defaultRetryWait      = 1.0
	defaultRetryBackoff   = 2.0
	defaultRetryMaxWait   = 30.0
	defaultPoolSize       = 10
	defaultAPIBind        = "127.0.0.1:5000"
	defaultFpcalcBinary   = "fpcalc"
	defaultFFprobeBinary  = "ffprobe"
	defaultFFmpegBinary   = "ffmpeg"
	defaultFreesoundTool  = "essentia_streaming_extractor_freesound"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultBlobRegionHint = "us-east-1"
)

// Blob backend identifiers.
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"
)

var defaultSlugKeys = []string{"artist", "album", "title"}

func defaultMimeTypes() map[string]string {
	return map[string]string{
		"mp3":  "audio/mpeg",
		"wav":  "audio/wav",
		"aif":  "audio/aiff",
		"aiff": "audio/aiff",
		"m4a":  "audio/mp4",
		"flac": "audio/flac",
		"ogg":  "audio/ogg",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TmpDir:  defaultTmpDir,
			LogDir:  defaultLogDir,
			DataDir: defaultDataDir,
		},
		Naming: Naming{
			SlugKeys:  append([]string(nil), defaultSlugKeys...),
			SlugDelim: defaultSlugDelim,
			UIDLength: defaultUIDLength,
			Root:      defaultRoot,
		},
		MimeTypes: defaultMimeTypes(),
		Blob: Blob{
			Backend: BlobBackendLocal,
			Dir:     defaultBlobDir,
		},
		Records: Records{
			Path: defaultRecordsPath,
		},
		Retry: Retry{
			Attempts:       defaultRetryAttempts,
			WaitSeconds:    defaultRetryWait,
			Backoff:        defaultRetryBackoff,
			MaxWaitSeconds: defaultRetryMaxWait,
		},
		Pool: Pool{
			Size: defaultPoolSize,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Tools: Tools{
			Fpcalc:    defaultFpcalcBinary,
			FFprobe:   defaultFFprobeBinary,
			FFmpeg:    defaultFFmpegBinary,
			Freesound: defaultFreesoundTool,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
