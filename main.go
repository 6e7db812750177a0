package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kb-assistant/internal/api"
	"kb-assistant/internal/chat"
	"kb-assistant/internal/config"
	"kb-assistant/internal/harvest"
	"kb-assistant/internal/ingest"
	"kb-assistant/internal/logging"
	"kb-assistant/internal/registry"
	"kb-assistant/internal/terminal"
	"kb-assistant/internal/transcript"
	"kb-assistant/internal/ui"
)

func main() {
	// .env values feed the environment before anything reads it
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Parse command-line flags
	cfg, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logLevel := cfg.LogLevel
	if cfg.Verbose {
		logLevel = "debug"
	}
	logger, err := logging.New(logging.Options{Path: cfg.LogFile, Level: logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	display := ui.NewDisplay(ui.Options{Out: os.Stdout, Markdown: cfg.Markdown, Color: true})
	a := newApp(cfg, logger, display, os.Getenv("HOME"))

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		display.PrintInfo("Shutting down gracefully...")
		cancel()
		a.shutdown()
		os.Exit(0)
	}()

	// Backend health check (non-fatal)
	spinner := display.StartSpinner("Contacting knowledge base...")
	err = a.client.HealthCheck(ctx)
	spinner.Stop()
	if err != nil {
		display.PrintWarning(fmt.Sprintf("Backend check failed: %v", err))
		display.PrintInfo("Questions will be answered once the service is reachable.")
	}

	if cfg.WatchDir != "" {
		if err := a.startWatch(ctx, cfg.WatchDir); err != nil {
			display.PrintWarning(fmt.Sprintf("Cannot watch %s: %v", cfg.WatchDir, err))
		}
	}

	display.PrintWelcome(a.client.BaseURL(), a.chat.Language())
	a.run(ctx, terminal.NewReader(os.Stdin))

	a.shutdown()
	display.PrintGoodbye()
}

// parseFlags loads the config file named by -config and applies the
// flags that were set explicitly on top of it
func parseFlags(args []string, getenv func(string) string) (*config.Config, error) {
	fs := flag.NewFlagSet("kb-assistant", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to a YAML config file")
	apiURL := fs.String("api-url", "", "Knowledge-base API URL (overrides build and environment)")
	lang := fs.String("lang", "", "Answer language code (e.g. en, hi, auto)")
	timeout := fs.Duration("timeout", 0, "Request timeout (e.g. 60s)")
	logFile := fs.String("log-file", "", "Log file path")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	noMarkdown := fs.Bool("no-markdown", false, "Print answers as plain text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath, getenv)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-url":
			cfg.APIURL = *apiURL
		case "lang":
			cfg.Language = *lang
		case "timeout":
			cfg.RequestTimeout = *timeout
		case "log-file":
			cfg.LogFile = *logFile
		case "verbose":
			cfg.Verbose = *verbose
		case "no-markdown":
			cfg.Markdown = !*noMarkdown
		}
	})
	return cfg, nil
}

// app holds the wired components behind the REPL
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	display   *ui.Display
	home      string
	client    *api.Client
	chat      *chat.Controller
	registry  *registry.Registry
	ingest    *ingest.Coordinator
	harvester *harvest.Harvester
	archive   *transcript.Manager

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDir    string

	closeOnce sync.Once
}

func newApp(cfg *config.Config, logger *zap.Logger, display *ui.Display, home string) *app {
	a := &app{cfg: cfg, logger: logger, display: display, home: home}

	a.client = api.NewClient(cfg.APIURL, api.Options{
		Timeout:       cfg.RequestTimeout,
		UploadTimeout: cfg.UploadTimeout,
		UserAgent:     cfg.UserAgent,
		Logger:        logger,
	})

	a.chat = chat.NewController(a.client, chat.Options{
		Logger:    logger,
		Language:  cfg.Language,
		OnMessage: a.onMessage,
	})

	a.registry = registry.New(a.client, registry.Options{Logger: logger})

	a.ingest = ingest.NewCoordinator(a.client, a.registry, ingest.Options{
		Logger:     logger,
		Extensions: cfg.Extensions,
		OnChange:   a.onUploadChange,
	})

	a.harvester = harvest.NewHarvester(harvest.Options{
		Timeout:    cfg.HarvestTimeout,
		MaxWorkers: cfg.HarvestWorkers,
		MaxPDFSize: cfg.MaxPDFSize,
		UserAgent:  cfg.UserAgent,
		Logger:     logger,
	})

	a.archive = transcript.NewManager(cfg.TranscriptPath, cfg.MaxSessions, a.client.BaseURL())
	return a
}

func (a *app) onMessage(msg chat.Message) {
	a.display.PrintMessage(msg)
	if msg.Sender == chat.SenderBot {
		a.display.PrintPending(a.chat.Pending())
		// answers arrive asynchronously, so redraw the prompt
		a.display.PrintPrompt()
	}
}

func (a *app) onUploadChange() {
	switch status := a.ingest.Status(); status {
	case ingest.FinishedText:
		a.display.PrintSuccess(status)
		a.display.PrintOutcome(a.ingest.Outcome())
	case ingest.FailedText:
		a.display.PrintWarning(status)
	default:
		a.display.PrintStatus(status)
	}
}

// run is the main conversation loop. When the input runs out, as with
// piped questions, it waits for queued work before returning.
func (a *app) run(ctx context.Context, in *terminal.Reader) {
	for {
		a.display.PrintPrompt()
		line, err := in.ReadLine()
		if err != nil {
			if err != io.EOF {
				a.display.PrintError(err)
				return
			}
			a.chat.Wait()
			a.ingest.Wait()
			return
		}
		if line == "" {
			continue
		}

		cmd, args, ok := terminal.ParseCommand(line)
		if !ok {
			a.chat.Submit(line)
			continue
		}
		if cmd == "/exit" || cmd == "/quit" {
			return
		}
		a.handleCommand(ctx, cmd, args)
	}
}

// shutdown tears the controllers down and archives the conversation
func (a *app) shutdown() {
	a.closeOnce.Do(func() {
		a.stopWatch()
		a.chat.Close()
		a.ingest.Close()
		a.registry.Close()

		start := time.Now()
		if err := a.archive.Append(a.chat.Session()); err != nil {
			a.logger.Warn("failed to archive transcript", zap.Error(err))
		} else {
			a.logger.Debug("transcript archived", zap.Duration("elapsed", time.Since(start)))
		}
	})
}
