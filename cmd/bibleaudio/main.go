package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dailyword/bibleaudio/internal/assemble"
	"github.com/dailyword/bibleaudio/internal/batch"
	"github.com/dailyword/bibleaudio/internal/bus"
	"github.com/dailyword/bibleaudio/internal/catalog"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/database"
	"github.com/dailyword/bibleaudio/internal/encode"
	"github.com/dailyword/bibleaudio/internal/ledger"
	"github.com/dailyword/bibleaudio/internal/pipeline"
	"github.com/dailyword/bibleaudio/internal/scripture"
	"github.com/dailyword/bibleaudio/internal/storage"
	"github.com/dailyword/bibleaudio/internal/telemetry"
	"github.com/dailyword/bibleaudio/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		envFiles    string
		showVersion bool
		testament   string
		book        int
		chapter     int
		initSchema  bool
		showRunID   string
		showChapter bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&envFiles, "env-file", ".env.local,.env", "Comma separated dotenv files, first match wins")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&testament, "testament", "", "Testament to generate (OT or NT), overrides config")
	flag.IntVar(&book, "book", 0, "Restrict the run to one book id")
	flag.IntVar(&chapter, "chapter", 0, "Restrict the run to one chapter of -book")
	flag.BoolVar(&initSchema, "init-schema", false, "Create the verse and audio tables when absent")
	flag.StringVar(&showRunID, "show-run", "", "Print the ledger history of a run id and exit")
	flag.BoolVar(&showChapter, "show-chapter", false, "Print stored metadata of -book/-chapter and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return 0
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath, strings.Split(envFiles, ",")...)
	if err != nil {
		bootLogger.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}
	if testament != "" {
		cfg.Batch.Testament = strings.ToUpper(strings.TrimSpace(testament))
	}
	if chapter > 0 && book <= 0 {
		bootLogger.Error("-chapter requires -book")
		return 1
	}
	if book > 0 {
		cfg.Batch.StartBook, cfg.Batch.EndBook = book, book
		cfg.Batch.StartChapter, cfg.Batch.EndChapter = chapter, chapter
	}

	logger := telemetry.NewLogger(cfg.Telemetry, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if showRunID != "" {
		if err := showRun(ctx, cfg.Ledger, showRunID, os.Stdout, logger); err != nil {
			logger.Error("show run failed", slog.String("error", err.Error()))
			return 1
		}
		return 0
	}
	if showChapter {
		if book <= 0 || chapter <= 0 {
			logger.Error("-show-chapter requires -book and -chapter")
			return 1
		}
		if err := showChapterMetadata(ctx, cfg.Database, book, chapter, os.Stdout); err != nil {
			logger.Error("show chapter failed", slog.String("error", err.Error()))
			return 1
		}
		return 0
	}

	summary, err := execute(ctx, cfg, initSchema, logger)
	if err != nil {
		logger.Error("batch aborted", slog.String("error", err.Error()))
		return 1
	}
	return summary.ExitCode()
}

func execute(ctx context.Context, cfg config.Config, initSchema bool, logger *slog.Logger) (batch.Summary, error) {
	tel, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownWithTimeout(logger, "telemetry", tel.Shutdown)

	if bind := strings.TrimSpace(cfg.Telemetry.PrometheusBind); bind != "" {
		srv, err := telemetry.Serve(bind, tel.MetricsHandler, logger)
		if err != nil {
			return batch.Summary{}, fmt.Errorf("start metrics server: %w", err)
		}
		defer shutdownWithTimeout(logger, "metrics server", srv.Shutdown)
	}

	// fail fast on a missing encoder before any synthesis spend
	encoder, err := encode.New(cfg.Encoder, logger)
	if err != nil {
		return batch.Summary{}, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return batch.Summary{}, err
	}
	defer db.Close()

	store, err := catalog.NewStore(db, cfg.Database.AudioTable)
	if err != nil {
		return batch.Summary{}, err
	}
	if initSchema {
		if err := scripture.EnsureSchema(ctx, db, cfg.Database.VerseTable); err != nil {
			return batch.Summary{}, fmt.Errorf("create verse table: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return batch.Summary{}, fmt.Errorf("create audio table: %w", err)
		}
	}

	source, err := scripture.NewSource(db, cfg.Database, logger)
	if err != nil {
		return batch.Summary{}, err
	}

	synth, err := tts.New(ctx, cfg.TTS)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("create tts provider: %w", err)
	}
	if closer, ok := synth.(io.Closer); ok {
		defer closer.Close()
	}
	client := tts.NewClient(synth, tts.OptionsFromConfig(cfg.TTS), logger)
	assembler := assemble.New(client, assemble.OptionsFromConfig(cfg.Assembly), logger)

	publisher, err := storage.NewS3Publisher(ctx, cfg.Storage, logger)
	if err != nil {
		return batch.Summary{}, err
	}

	processor := pipeline.NewProcessor(assembler, encoder, publisher, store, pipeline.SettingsFromConfig(cfg), logger)

	var observers []batch.Observer
	runLedger, err := ledger.Open(ctx, cfg.Ledger, logger)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("open run ledger: %w", err)
	}
	defer runLedger.Close()
	observers = append(observers, runLedger)

	if cfg.Bus.Enabled {
		nc, err := bus.Connect(ctx, cfg.Bus, logger)
		if err != nil {
			// lifecycle events are advisory
			logger.Warn("event bus unavailable", slog.String("error", err.Error()))
		} else {
			defer nc.Close()
			observers = append(observers, nc.Events())
		}
	}

	opts, err := batch.OptionsFromConfig(cfg.Batch)
	if err != nil {
		return batch.Summary{}, err
	}
	controller := batch.NewController(source, store, processor, opts, logger, observers...)
	summary, err := controller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("batch interrupted", slog.Int("processed", summary.Processed), slog.Int("failed", summary.Failed))
	}
	return summary, err
}

func shutdownWithTimeout(logger *slog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error(what+" shutdown error", slog.String("error", err.Error()))
	}
}
