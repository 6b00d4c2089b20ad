package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BIBLE_AUDIO_DATABASE_DSN", "postgres://localhost/bible")
	t.Setenv("BIBLE_AUDIO_TTS_CLIENT_ID", "id")
	t.Setenv("BIBLE_AUDIO_TTS_CLIENT_SECRET", "secret")
	t.Setenv("BIBLE_AUDIO_STORAGE_ENDPOINT", "https://account.r2.cloudflarestorage.com")
	t.Setenv("BIBLE_AUDIO_STORAGE_ACCESS_KEY_ID", "key")
	t.Setenv("BIBLE_AUDIO_STORAGE_SECRET_ACCESS_KEY", "secret")
	t.Setenv("BIBLE_AUDIO_STORAGE_BUCKET", "audio")
	t.Setenv("BIBLE_AUDIO_STORAGE_PUBLIC_BASE_URL", "https://cdn.example.com")
}

func TestLoadFailsWithoutCredentials(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	if !strings.Contains(err.Error(), "database.dsn") {
		t.Fatalf("expected dsn error first, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.MaxChars != 1500 {
		t.Fatalf("expected default max chars 1500, got %d", cfg.TTS.MaxChars)
	}
	if cfg.Encoder.BitrateKbps != 48 {
		t.Fatalf("expected default bitrate 48, got %d", cfg.Encoder.BitrateKbps)
	}
	if cfg.TTS.RetryCount != 3 {
		t.Fatalf("expected default retry 3, got %d", cfg.TTS.RetryCount)
	}
	if cfg.Database.PageSize != 1000 {
		t.Fatalf("expected page size 1000, got %d", cfg.Database.PageSize)
	}
	if cfg.Batch.Concurrency != 1 {
		t.Fatalf("expected sequential default, got %d", cfg.Batch.Concurrency)
	}
}

func TestEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BIBLE_AUDIO_TESTAMENT", "nt")
	t.Setenv("BIBLE_AUDIO_START_BOOK", "40")
	t.Setenv("BIBLE_AUDIO_START_CHAPTER", "2")
	t.Setenv("BIBLE_AUDIO_MAX_CHAPTERS", "5")
	t.Setenv("BIBLE_AUDIO_SKIP_EXISTING", "false")
	t.Setenv("BIBLE_AUDIO_TTS_SPEED", "-1")
	t.Setenv("BIBLE_AUDIO_VERSE_GAP_MS", "600")
	t.Setenv("BIBLE_AUDIO_KEEP_TEMP", "true")
	t.Setenv("BIBLE_AUDIO_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch.Testament != "NT" {
		t.Fatalf("expected testament NT, got %q", cfg.Batch.Testament)
	}
	if cfg.Batch.StartBook != 40 || cfg.Batch.StartChapter != 2 {
		t.Fatalf("expected start bound override, got %d:%d", cfg.Batch.StartBook, cfg.Batch.StartChapter)
	}
	if cfg.Batch.MaxChapters != 5 {
		t.Fatalf("expected max chapters override")
	}
	if cfg.Batch.SkipExisting {
		t.Fatal("expected skip existing override false")
	}
	if cfg.TTS.Speed != -1 {
		t.Fatalf("expected speed override, got %v", cfg.TTS.Speed)
	}
	if cfg.Assembly.VerseGapMS != 600 {
		t.Fatalf("expected verse gap override")
	}
	if !cfg.Encoder.KeepTemp {
		t.Fatal("expected keep temp override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestSourcePriority(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bibleaudio.yaml")
	yamlBody := "tts:\n  speaker: yaml-speaker\n  max_chars: 900\nassembly:\n  brace_gap_ms: 700\n"
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	envBody := "BIBLE_AUDIO_TTS_SPEAKER=dotenv-speaker\nBIBLE_AUDIO_TTS_MAX_CHARS=800\n"
	if err := os.WriteFile(envPath, []byte(envBody), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	setRequired(t)
	t.Setenv("BIBLE_AUDIO_TTS_SPEAKER", "process-speaker")

	cfg, err := Load(yamlPath, envPath, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.Speaker != "process-speaker" {
		t.Fatalf("expected process env to win, got %q", cfg.TTS.Speaker)
	}
	if cfg.TTS.MaxChars != 800 {
		t.Fatalf("expected dotenv to beat yaml, got %d", cfg.TTS.MaxChars)
	}
	if cfg.Assembly.BraceGapMS != 700 {
		t.Fatalf("expected yaml value, got %d", cfg.Assembly.BraceGapMS)
	}
	if _, ok := os.LookupEnv("BIBLE_AUDIO_TTS_MAX_CHARS"); ok {
		t.Fatal("dotenv values must not leak into the process environment")
	}
}

func TestMissingConfigFile(t *testing.T) {
	setRequired(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestProviderCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("BIBLE_AUDIO_TTS_PROVIDER", "openai")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "tts.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
	t.Setenv("BIBLE_AUDIO_TTS_API_KEY", "sk-test")
	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
