package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/sirupsen/logrus"
	"github.com/ttelectronics/trackii-scan/internal/config"
	"github.com/ttelectronics/trackii-scan/internal/diaglog"
	"github.com/ttelectronics/trackii-scan/internal/framesource"
	"github.com/ttelectronics/trackii-scan/internal/httpapi"
	"github.com/ttelectronics/trackii-scan/internal/ipc"
	"github.com/ttelectronics/trackii-scan/internal/journal"
	"github.com/ttelectronics/trackii-scan/internal/partcheck"
	"github.com/ttelectronics/trackii-scan/internal/pidfile"
	"github.com/ttelectronics/trackii-scan/internal/statemachine"
)

const appName = "trackii-scand"

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

type options struct {
	configPath     string
	decoderURL     string
	replayPath     string
	validatorURL   string
	validatorToken string
	httpAddr       string
	journalPath    string
	stateDir       string
	logDir         string
	exportDiag     string
	showVersion    bool
}

func parseOptions(args []string) (*options, error) {
	fs := ff.NewFlagSet(appName)
	var (
		configPath     = fs.StringLong("config", config.DefaultConfigPath(), "Config file path")
		decoderURL     = fs.StringLong("decoder-url", "", "Decoder WebSocket URL (overrides config)")
		replayPath     = fs.StringLong("replay", "", "Replay frames from an NDJSON recording instead of the decoder")
		validatorURL   = fs.StringLong("validator-url", "", "Part lookup API base URL (overrides config)")
		validatorToken = fs.StringLong("validator-token", "", "Part lookup API bearer token")
		httpAddr       = fs.StringLong("http-addr", "", "Status API listen address, empty uses config, \"off\" disables")
		journalPath    = fs.StringLong("journal", "", "Capture journal database path (overrides config)")
		stateDir       = fs.StringLong("state-dir", ipc.DefaultStateDir(), "Directory for status, commands and pid file")
		logDir         = fs.StringLong("log-dir", filepath.Join(os.TempDir(), "trackii"), "Directory for the daemon log")
		exportDiag     = fs.StringLong("export-diag", "", "Write a diagnostics bundle from this scan log and exit")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("TRACKII")); err != nil {
		return nil, fmt.Errorf("%w\n%s", err, ffhelp.Flags(fs))
	}
	return &options{
		configPath:     *configPath,
		decoderURL:     *decoderURL,
		replayPath:     *replayPath,
		validatorURL:   *validatorURL,
		validatorToken: *validatorToken,
		httpAddr:       *httpAddr,
		journalPath:    *journalPath,
		stateDir:       *stateDir,
		logDir:         *logDir,
		exportDiag:     *exportDiag,
		showVersion:    *showVersion,
	}, nil
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(opts *options) (*config.ScanConfig, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.decoderURL != "" {
		cfg.Decoder.URL = opts.decoderURL
	}
	if opts.validatorURL != "" {
		cfg.Validator.BaseURL = opts.validatorURL
	}
	if opts.validatorToken != "" {
		cfg.Validator.Token = opts.validatorToken
	}
	if opts.httpAddr != "" {
		cfg.HTTPAddr = opts.httpAddr
	}
	if opts.journalPath != "" {
		cfg.JournalPath = opts.journalPath
	}
	if cfg.HTTPAddr == "off" {
		cfg.HTTPAddr = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// Missing .env is fine
	_ = godotenv.Load()

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if opts.showVersion {
		fmt.Println(Version)
		os.Exit(0)
	}

	if opts.exportDiag != "" {
		diaglog.Version = Version
		path, n, err := diaglog.Export(opts.exportDiag, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with TRACKII_DEBUG_SCAN=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	log, logFile, err := initLogging(opts.logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(opts, log); err != nil {
		log.Errorf("[SHUTDOWN] %v", err)
		logFile.Close()
		os.Exit(1)
	}
}

func run(opts *options, log *logrus.Logger) error {
	log.Info("===========================================")
	log.Infof("Starting Trackii Scanner v%s...", Version)
	log.Infof("PID: %d", os.Getpid())
	log.Info("===========================================")

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	log.Infof("[STARTUP] Config loaded from %s", opts.configPath)
	log.Infof("[STARTUP] Stability: %d/%d/%d reads, cooldown %dms",
		cfg.Stability.HighConfidenceReads, cfg.Stability.MediumConfidenceReads,
		cfg.Stability.LowConfidenceReads, cfg.Stability.MinAcceptIntervalMs)

	pf, err := pidfile.Acquire(pidfile.DefaultPath(opts.stateDir, appName))
	if err != nil {
		var running *pidfile.AlreadyRunningError
		if errors.As(err, &running) {
			log.Errorf("[STARTUP] Another instance is running (PID %d)", running.PID)
		}
		return err
	}
	defer func() {
		if err := pf.Release(); err != nil {
			log.Warnf("[SHUTDOWN] Failed to remove PID file: %v", err)
		}
	}()
	log.Infof("[STARTUP] PID file: %s", pf.Path())

	diagPath := os.Getenv("TRACKII_SCAN_LOG_PATH")
	if diagPath == "" {
		diagPath = filepath.Join(opts.logDir, "trackii-scan-debug.ndjson")
	}
	diag, err := diaglog.New(diagPath)
	if err != nil {
		log.Warnf("[STARTUP] Diagnostic log unavailable, continuing without: %v", err)
		diag = diaglog.NewNoOp()
	}
	defer diag.Close()
	if diaglog.IsDebugEnabled() {
		log.Infof("[STARTUP] Diagnostic log: %s", diagPath)
	}

	var store journal.Store
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		bolt, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		store = bolt
		defer func() {
			if err := bolt.Close(); err != nil {
				log.Warnf("[SHUTDOWN] Failed to close journal: %v", err)
			}
		}()
		log.Infof("[STARTUP] Capture journal: %s", cfg.JournalPath)
	}

	parts := partcheck.NewClient(partcheck.Config{
		BaseURL:        cfg.Validator.BaseURL,
		Token:          cfg.Validator.Token,
		TimeoutSeconds: cfg.Validator.TimeoutSeconds,
		Retries:        cfg.Validator.Retries,
	})
	parts.SetLogger(diag)
	healthCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if h, _ := parts.HealthCheck(healthCtx); h != nil && !h.OK {
		log.Warnf("[STARTUP] Part lookup API not healthy: %s", h.Message)
	} else if h != nil {
		log.Infof("[STARTUP] Part lookup API reachable (%s)", h.Latency)
	}
	cancel()

	session := statemachine.NewSession(&cfg.Stability, parts)
	d := newDaemon(log, diag, session, store, opts.stateDir)
	defer session.Close()

	src, frames, err := openSource(opts, cfg, diag, log)
	if err != nil {
		return err
	}
	d.setSource(src)
	defer src.Close()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go d.watchCommands(stopWatch)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpapi.NewRouter(&httpapi.Server{
				Scanner: d,
				Parts:   parts,
				Journal: store,
				Log:     log,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("[STARTUP] Status API listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Status API stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	log.Info("[STARTUP] Signal handlers registered (SIGINT, SIGTERM)")

	d.writeStatus()
	log.Info("[RUNNING] Scanner is running")

	err = d.loop(src, frames, sigChan)

	log.Info("===========================================")
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Warnf("[SHUTDOWN] Status API shutdown: %v", err)
		}
		cancel()
	}
	log.Info("[SHUTDOWN] Shutting down gracefully")
	return err
}

// openSource starts either the live decoder client or a replay and returns
// its frame channel
func openSource(opts *options, cfg *config.ScanConfig, diag *diaglog.Logger, log logrus.FieldLogger) (framesource.Source, <-chan framesource.Frame, error) {
	if opts.replayPath != "" {
		rp, err := framesource.OpenReplay(opts.replayPath)
		if err != nil {
			return nil, nil, err
		}
		rp.SetLogger(diag)
		rp.Start()
		log.Infof("[STARTUP] Replaying frames from %s", opts.replayPath)
		return rp, rp.Frames(), nil
	}

	if cfg.Decoder.URL == "" {
		return nil, nil, errors.New("no decoder URL configured and no replay file given")
	}
	c := framesource.NewClient(cfg.Decoder.URL, time.Duration(cfg.Decoder.ReconnectSeconds)*time.Second)
	c.SetLogger(diag)
	c.OnConnected(func() { log.Infof("[EVENT] Decoder connected: %s", cfg.Decoder.URL) })
	c.OnDisconnected(func() { log.Warn("[EVENT] Decoder disconnected, reconnecting") })
	c.Start()
	log.Infof("[STARTUP] Connecting to decoder at %s", cfg.Decoder.URL)
	return c, c.Frames(), nil
}

// loop feeds frames to the session until a signal, a quit command or the
// end of a replay. The session is only driven from this goroutine.
func (d *daemon) loop(src framesource.Source, frames <-chan framesource.Frame, sigChan <-chan os.Signal) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if rp, isReplay := src.(*framesource.Replay); isReplay {
					d.log.Infof("[EVENT] Replay finished after %d frames", rp.Sent())
					d.session.Wait()
					d.writeStatus()
					return rp.Err()
				}
				return errors.New("frame source closed")
			}
			d.ingest(f)

		case <-ticker.C:
			d.writeStatus()

		case sig := <-sigChan:
			d.log.Infof("[SHUTDOWN] Received %s at %s", sig, time.Now().Format(time.RFC3339))
			return nil

		case <-d.quit:
			d.log.Info("[SHUTDOWN] Quit requested")
			return nil
		}
	}
}
