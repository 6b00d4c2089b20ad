package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // pgx, sqlite
	DSN        string `yaml:"dsn"`
	VerseTable string `yaml:"verse_table"`
	AudioTable string `yaml:"audio_table"`
	PageSize   int    `yaml:"page_size"`
}

type BatchConfig struct {
	Testament    string `yaml:"testament"`
	StartBook    int    `yaml:"start_book"`
	StartChapter int    `yaml:"start_chapter"`
	EndBook      int    `yaml:"end_book"`
	EndChapter   int    `yaml:"end_chapter"`
	MaxChapters  int    `yaml:"max_chapters"`
	SkipExisting bool   `yaml:"skip_existing"`
	Concurrency  int    `yaml:"concurrency"`
}

type TTSConfig struct {
	Provider          string  `yaml:"provider"` // naver, google, openai, exec, mock
	Endpoint          string  `yaml:"endpoint"`
	ClientID          string  `yaml:"client_id"`
	ClientSecret      string  `yaml:"client_secret"`
	APIKey            string  `yaml:"api_key"`
	CredentialsFile   string  `yaml:"credentials_file"`
	Command           string  `yaml:"command"`
	Model             string  `yaml:"model"`
	LanguageCode      string  `yaml:"language_code"`
	Speaker           string  `yaml:"speaker"`
	Speed             float64 `yaml:"speed"`
	Pitch             float64 `yaml:"pitch"`
	Volume            float64 `yaml:"volume"`
	SampleRate        int     `yaml:"sample_rate"`
	RequestDelayMS    int     `yaml:"request_delay_ms"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	RetryCount        int     `yaml:"retry_count"`
	RetryBackoffMS    int     `yaml:"retry_backoff_ms"`
	MaxChars          int     `yaml:"max_chars"`
	TimeoutMS         int     `yaml:"timeout_ms"`
}

type AssemblyConfig struct {
	VerseGapMS int  `yaml:"verse_gap_ms"`
	IntroGapMS int  `yaml:"intro_gap_ms"`
	BraceGapMS int  `yaml:"brace_gap_ms"`
	BraceSplit bool `yaml:"brace_split"`
}

type EncoderConfig struct {
	Mode        string `yaml:"mode"` // ffmpeg, exec
	FFmpegPath  string `yaml:"ffmpeg_path"`
	Command     string `yaml:"command"`
	Codec       string `yaml:"codec"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
	Extension   string `yaml:"extension"`
	ContentType string `yaml:"content_type"`
	TempDir     string `yaml:"temp_dir"`
	KeepTemp    bool   `yaml:"keep_temp"`
}

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

type ArtifactConfig struct {
	Version       string `yaml:"version"`
	VoiceTag      string `yaml:"voice_tag"`
	SchemaVersion int    `yaml:"schema_version"`
}

type LedgerConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // off, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type Config struct {
	Environment string          `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Database    DatabaseConfig  `yaml:"database"`
	Batch       BatchConfig     `yaml:"batch"`
	TTS         TTSConfig       `yaml:"tts"`
	Assembly    AssemblyConfig  `yaml:"assembly"`
	Encoder     EncoderConfig   `yaml:"encoder"`
	Storage     StorageConfig   `yaml:"storage"`
	Artifact    ArtifactConfig  `yaml:"artifact"`
	Ledger      LedgerConfig    `yaml:"ledger"`
	Bus         BusConfig       `yaml:"bus"`
}

// DefaultNaverEndpoint is the Naver Cloud premium voice synthesis API.
const DefaultNaverEndpoint = "https://naveropenapi.apigw.ntruss.com/tts-premium/v1/tts"

func Default() Config {
	return Config{
		Environment: "development",
		Telemetry: TelemetryConfig{
			ServiceName:  "bibleaudio",
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPInsecure: true,
		},
		Database: DatabaseConfig{
			Driver:     "pgx",
			VerseTable: "bible_verses",
			AudioTable: "bible_chapter_audio",
			PageSize:   1000,
		},
		Batch: BatchConfig{
			Testament:    "OT",
			SkipExisting: true,
			Concurrency:  1,
		},
		TTS: TTSConfig{
			Provider:       "naver",
			Endpoint:       DefaultNaverEndpoint,
			Model:          "tts-1",
			LanguageCode:   "ko-KR",
			Speaker:        "nminseo",
			SampleRate:     24000,
			RequestDelayMS: 150,
			RetryCount:     3,
			RetryBackoffMS: 1000,
			MaxChars:       1500,
		},
		Assembly: AssemblyConfig{
			VerseGapMS: 450,
			IntroGapMS: 450,
			BraceGapMS: 450,
			BraceSplit: true,
		},
		Encoder: EncoderConfig{
			Mode:        "ffmpeg",
			FFmpegPath:  "ffmpeg",
			Codec:       "aac",
			BitrateKbps: 48,
			Extension:   "m4a",
			ContentType: "audio/mp4",
		},
		Storage: StorageConfig{
			Region: "auto",
		},
		Artifact: ArtifactConfig{
			Version:       "v1",
			VoiceTag:      "nminseo",
			SchemaVersion: 1,
		},
		Ledger: LedgerConfig{
			Path:          "./data/bibleaudio-ledger.db",
			RetentionMode: "persistent",
			RetentionDays: 90,
			MaxRuns:       500,
		},
		Bus: BusConfig{
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "bibleaudio",
		},
	}
}

// Load assembles the configuration from defaults, an optional YAML file,
// optional dotenv files and the process environment, in increasing priority.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	dotenv := map[string]string{}
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return cfg, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range values {
			if _, seen := dotenv[k]; !seen {
				dotenv[k] = v
			}
		}
	}

	applyEnvOverrides(&cfg, chainLookup(os.LookupEnv, mapLookup(dotenv)))
	cfg.Batch.Testament = strings.ToUpper(strings.TrimSpace(cfg.Batch.Testament))
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func mapLookup(values map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// chainLookup returns the first source that defines the key.
func chainLookup(sources ...lookupFunc) lookupFunc {
	return func(key string) (string, bool) {
		for _, src := range sources {
			if v, ok := src(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

func applyEnvOverrides(cfg *Config, env lookupFunc) {
	o := overrider{env: env}
	o.setString(&cfg.Environment, "BIBLE_AUDIO_ENVIRONMENT")
	o.setString(&cfg.Telemetry.ServiceName, "BIBLE_AUDIO_TELEMETRY_SERVICE_NAME")
	o.setString(&cfg.Telemetry.LogLevel, "BIBLE_AUDIO_TELEMETRY_LOG_LEVEL")
	o.setString(&cfg.Telemetry.LogFormat, "BIBLE_AUDIO_TELEMETRY_LOG_FORMAT")
	o.setString(&cfg.Telemetry.OTLPEndpoint, "BIBLE_AUDIO_TELEMETRY_OTLP_ENDPOINT")
	o.setBool(&cfg.Telemetry.OTLPInsecure, "BIBLE_AUDIO_TELEMETRY_OTLP_INSECURE")
	o.setBool(&cfg.Telemetry.TraceStdout, "BIBLE_AUDIO_TELEMETRY_TRACE_STDOUT")
	o.setString(&cfg.Telemetry.PrometheusBind, "BIBLE_AUDIO_TELEMETRY_PROMETHEUS_BIND")
	o.setString(&cfg.Database.Driver, "BIBLE_AUDIO_DATABASE_DRIVER")
	o.setString(&cfg.Database.DSN, "BIBLE_AUDIO_DATABASE_DSN")
	o.setString(&cfg.Database.VerseTable, "BIBLE_AUDIO_DATABASE_VERSE_TABLE")
	o.setString(&cfg.Database.AudioTable, "BIBLE_AUDIO_DATABASE_AUDIO_TABLE")
	o.setInt(&cfg.Database.PageSize, "BIBLE_AUDIO_DATABASE_PAGE_SIZE")
	o.setString(&cfg.Batch.Testament, "BIBLE_AUDIO_TESTAMENT")
	o.setInt(&cfg.Batch.StartBook, "BIBLE_AUDIO_START_BOOK")
	o.setInt(&cfg.Batch.StartChapter, "BIBLE_AUDIO_START_CHAPTER")
	o.setInt(&cfg.Batch.EndBook, "BIBLE_AUDIO_END_BOOK")
	o.setInt(&cfg.Batch.EndChapter, "BIBLE_AUDIO_END_CHAPTER")
	o.setInt(&cfg.Batch.MaxChapters, "BIBLE_AUDIO_MAX_CHAPTERS")
	o.setBool(&cfg.Batch.SkipExisting, "BIBLE_AUDIO_SKIP_EXISTING")
	o.setInt(&cfg.Batch.Concurrency, "BIBLE_AUDIO_CONCURRENCY")
	o.setString(&cfg.TTS.Provider, "BIBLE_AUDIO_TTS_PROVIDER")
	o.setString(&cfg.TTS.Endpoint, "BIBLE_AUDIO_TTS_ENDPOINT")
	o.setString(&cfg.TTS.ClientID, "BIBLE_AUDIO_TTS_CLIENT_ID")
	o.setString(&cfg.TTS.ClientSecret, "BIBLE_AUDIO_TTS_CLIENT_SECRET")
	o.setString(&cfg.TTS.APIKey, "BIBLE_AUDIO_TTS_API_KEY")
	o.setString(&cfg.TTS.CredentialsFile, "BIBLE_AUDIO_TTS_CREDENTIALS_FILE")
	o.setString(&cfg.TTS.Command, "BIBLE_AUDIO_TTS_COMMAND")
	o.setString(&cfg.TTS.Model, "BIBLE_AUDIO_TTS_MODEL")
	o.setString(&cfg.TTS.LanguageCode, "BIBLE_AUDIO_TTS_LANGUAGE_CODE")
	o.setString(&cfg.TTS.Speaker, "BIBLE_AUDIO_TTS_SPEAKER")
	o.setFloat(&cfg.TTS.Speed, "BIBLE_AUDIO_TTS_SPEED")
	o.setFloat(&cfg.TTS.Pitch, "BIBLE_AUDIO_TTS_PITCH")
	o.setFloat(&cfg.TTS.Volume, "BIBLE_AUDIO_TTS_VOLUME")
	o.setInt(&cfg.TTS.SampleRate, "BIBLE_AUDIO_TTS_SAMPLE_RATE")
	o.setInt(&cfg.TTS.RequestDelayMS, "BIBLE_AUDIO_TTS_REQUEST_DELAY_MS")
	o.setInt(&cfg.TTS.RequestsPerMinute, "BIBLE_AUDIO_TTS_REQUESTS_PER_MINUTE")
	o.setInt(&cfg.TTS.RetryCount, "BIBLE_AUDIO_TTS_RETRY_COUNT")
	o.setInt(&cfg.TTS.RetryBackoffMS, "BIBLE_AUDIO_TTS_RETRY_BACKOFF_MS")
	o.setInt(&cfg.TTS.MaxChars, "BIBLE_AUDIO_TTS_MAX_CHARS")
	o.setInt(&cfg.TTS.TimeoutMS, "BIBLE_AUDIO_TTS_TIMEOUT_MS")
	o.setInt(&cfg.Assembly.VerseGapMS, "BIBLE_AUDIO_VERSE_GAP_MS")
	o.setInt(&cfg.Assembly.IntroGapMS, "BIBLE_AUDIO_INTRO_GAP_MS")
	o.setInt(&cfg.Assembly.BraceGapMS, "BIBLE_AUDIO_BRACE_GAP_MS")
	o.setBool(&cfg.Assembly.BraceSplit, "BIBLE_AUDIO_BRACE_SPLIT")
	o.setString(&cfg.Encoder.Mode, "BIBLE_AUDIO_ENCODER_MODE")
	o.setString(&cfg.Encoder.FFmpegPath, "BIBLE_AUDIO_FFMPEG_PATH")
	o.setString(&cfg.Encoder.Command, "BIBLE_AUDIO_ENCODER_COMMAND")
	o.setString(&cfg.Encoder.Codec, "BIBLE_AUDIO_ENCODER_CODEC")
	o.setInt(&cfg.Encoder.BitrateKbps, "BIBLE_AUDIO_ENCODER_BITRATE_KBPS")
	o.setString(&cfg.Encoder.Extension, "BIBLE_AUDIO_ENCODER_EXTENSION")
	o.setString(&cfg.Encoder.ContentType, "BIBLE_AUDIO_ENCODER_CONTENT_TYPE")
	o.setString(&cfg.Encoder.TempDir, "BIBLE_AUDIO_TEMP_DIR")
	o.setBool(&cfg.Encoder.KeepTemp, "BIBLE_AUDIO_KEEP_TEMP")
	o.setString(&cfg.Storage.Endpoint, "BIBLE_AUDIO_STORAGE_ENDPOINT")
	o.setString(&cfg.Storage.Region, "BIBLE_AUDIO_STORAGE_REGION")
	o.setString(&cfg.Storage.AccessKeyID, "BIBLE_AUDIO_STORAGE_ACCESS_KEY_ID")
	o.setString(&cfg.Storage.SecretAccessKey, "BIBLE_AUDIO_STORAGE_SECRET_ACCESS_KEY")
	o.setString(&cfg.Storage.Bucket, "BIBLE_AUDIO_STORAGE_BUCKET")
	o.setString(&cfg.Storage.PublicBaseURL, "BIBLE_AUDIO_STORAGE_PUBLIC_BASE_URL")
	o.setString(&cfg.Artifact.Version, "BIBLE_AUDIO_VERSION")
	o.setString(&cfg.Artifact.VoiceTag, "BIBLE_AUDIO_VOICE_TAG")
	o.setInt(&cfg.Artifact.SchemaVersion, "BIBLE_AUDIO_SCHEMA_VERSION")
	o.setString(&cfg.Ledger.Path, "BIBLE_AUDIO_LEDGER_PATH")
	o.setString(&cfg.Ledger.RetentionMode, "BIBLE_AUDIO_LEDGER_RETENTION_MODE")
	o.setInt(&cfg.Ledger.RetentionDays, "BIBLE_AUDIO_LEDGER_RETENTION_DAYS")
	o.setInt(&cfg.Ledger.MaxRuns, "BIBLE_AUDIO_LEDGER_MAX_RUNS")
	o.setBool(&cfg.Bus.Enabled, "BIBLE_AUDIO_BUS_ENABLED")
	o.setStringSlice(&cfg.Bus.Servers, "BIBLE_AUDIO_BUS_SERVERS")
	o.setString(&cfg.Bus.Username, "BIBLE_AUDIO_BUS_USERNAME")
	o.setString(&cfg.Bus.Password, "BIBLE_AUDIO_BUS_PASSWORD")
	o.setString(&cfg.Bus.Token, "BIBLE_AUDIO_BUS_TOKEN")
	o.setBool(&cfg.Bus.TLSInsecure, "BIBLE_AUDIO_BUS_TLS_INSECURE")
	o.setInt(&cfg.Bus.ConnectTimeout, "BIBLE_AUDIO_BUS_CONNECT_TIMEOUT_MS")
	o.setString(&cfg.Bus.SubjectPrefix, "BIBLE_AUDIO_BUS_SUBJECT_PREFIX")
}

type overrider struct {
	env lookupFunc
}

func (o overrider) setString(target *string, envKey string) {
	if value, ok := o.env(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func (o overrider) setInt(target *int, envKey string) {
	if value, ok := o.env(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func (o overrider) setBool(target *bool, envKey string) {
	if value, ok := o.env(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func (o overrider) setFloat(target *float64, envKey string) {
	if value, ok := o.env(envKey); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func (o overrider) setStringSlice(target *[]string, envKey string) {
	if value, ok := o.env(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	switch strings.ToUpper(cfg.Batch.Testament) {
	case "OT", "NT":
	default:
		return errors.New("batch.testament must be one of OT|NT")
	}
	switch cfg.Database.Driver {
	case "pgx", "sqlite":
	default:
		return errors.New("database.driver must be one of pgx|sqlite")
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn must not be empty")
	}
	if cfg.Database.PageSize <= 0 {
		return errors.New("database.page_size must be positive")
	}
	if cfg.Batch.MaxChapters < 0 {
		return errors.New("batch.max_chapters must be >= 0")
	}
	if cfg.Batch.Concurrency < 1 {
		return errors.New("batch.concurrency must be >= 1")
	}
	if (cfg.Batch.StartChapter > 0 && cfg.Batch.StartBook <= 0) || (cfg.Batch.EndChapter > 0 && cfg.Batch.EndBook <= 0) {
		return errors.New("batch chapter bounds require the matching book bound")
	}

	switch cfg.TTS.Provider {
	case "naver":
		if cfg.TTS.Endpoint == "" {
			return errors.New("tts.endpoint must be set when provider=naver")
		}
		if cfg.TTS.ClientID == "" || cfg.TTS.ClientSecret == "" {
			return errors.New("tts.client_id and tts.client_secret must be set when provider=naver")
		}
	case "google":
		if cfg.TTS.LanguageCode == "" {
			return errors.New("tts.language_code must be set when provider=google")
		}
	case "openai":
		if cfg.TTS.APIKey == "" {
			return errors.New("tts.api_key must be set when provider=openai")
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when provider=exec")
		}
	case "mock":
	default:
		return errors.New("tts.provider must be one of naver|google|openai|exec|mock")
	}
	if cfg.TTS.Speaker == "" {
		return errors.New("tts.speaker must not be empty")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.RetryCount < 1 {
		return errors.New("tts.retry_count must be >= 1")
	}
	if cfg.TTS.RetryBackoffMS < 0 || cfg.TTS.RequestDelayMS < 0 || cfg.TTS.RequestsPerMinute < 0 {
		return errors.New("tts delays must be >= 0")
	}
	if cfg.TTS.MaxChars <= 0 {
		return errors.New("tts.max_chars must be positive")
	}

	if cfg.Assembly.VerseGapMS < 0 || cfg.Assembly.IntroGapMS < 0 || cfg.Assembly.BraceGapMS < 0 {
		return errors.New("assembly gaps must be >= 0")
	}

	switch cfg.Encoder.Mode {
	case "ffmpeg":
		if cfg.Encoder.FFmpegPath == "" {
			return errors.New("encoder.ffmpeg_path must be set when mode=ffmpeg")
		}
	case "exec":
		if cfg.Encoder.Command == "" {
			return errors.New("encoder.command must be set when mode=exec")
		}
	default:
		return errors.New("encoder.mode must be one of ffmpeg|exec")
	}
	if cfg.Encoder.BitrateKbps <= 0 {
		return errors.New("encoder.bitrate_kbps must be positive")
	}
	if cfg.Encoder.Extension == "" {
		return errors.New("encoder.extension must not be empty")
	}

	if cfg.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must not be empty")
	}
	if cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretAccessKey == "" {
		return errors.New("storage.access_key_id and storage.secret_access_key must not be empty")
	}
	if cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket must not be empty")
	}
	if cfg.Storage.PublicBaseURL == "" {
		return errors.New("storage.public_base_url must not be empty")
	}

	if cfg.Artifact.Version == "" || cfg.Artifact.VoiceTag == "" {
		return errors.New("artifact.version and artifact.voice_tag must not be empty")
	}

	switch cfg.Ledger.RetentionMode {
	case "off", "persistent":
	default:
		return errors.New("ledger.retention_mode must be one of off|persistent")
	}
	if cfg.Ledger.RetentionMode != "off" && cfg.Ledger.Path == "" {
		return errors.New("ledger.path must not be empty")
	}
	if cfg.Ledger.RetentionDays < 0 || cfg.Ledger.MaxRuns < 0 {
		return errors.New("ledger retention values must be >= 0")
	}

	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	return nil
}
