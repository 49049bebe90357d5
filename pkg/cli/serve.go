package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/pkg/audit"
	"github.com/dispatchd/dispatchd/pkg/callback"
	"github.com/dispatchd/dispatchd/pkg/classcallback"
	"github.com/dispatchd/dispatchd/pkg/config"
	"github.com/dispatchd/dispatchd/pkg/dispatch"
	"github.com/dispatchd/dispatchd/pkg/expectation"
	"github.com/dispatchd/dispatchd/pkg/httpclient"
	"github.com/dispatchd/dispatchd/pkg/logging"
	"github.com/dispatchd/dispatchd/pkg/metrics"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
	"github.com/dispatchd/dispatchd/pkg/server"
	"github.com/dispatchd/dispatchd/pkg/template"
)

var (
	serveAddr              string
	serveConfigFile        string
	serveProxyMode         bool
	serveLogLevel          string
	serveLogFormat         string
	serveLokiURL           string
	serveAuditStdoutMirror bool
	serveWatch             bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatchd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to a YAML server configuration file")
	serveCmd.Flags().StringVar(&expectationsFile, "expectations", "expectations.json", "Path to the expectations file")
	serveCmd.Flags().BoolVar(&serveProxyMode, "proxy", false, "Treat every unmatched request as an explicit proxy target")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "text", "Log format: text, json")
	serveCmd.Flags().StringVar(&serveLokiURL, "log-loki-url", "", "Also ship logs to this Loki push endpoint")
	serveCmd.Flags().BoolVar(&serveAuditStdoutMirror, "audit-stdout-mirror", false, "Additionally mirror every audit entry to stdout")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Hot-reload the expectations file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigFile != "" {
		loaded, err := config.Load(serveConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log := buildLogger()

	rawExpectations, err := readExpectationsRaw(expectationsFile)
	if err != nil {
		return err
	}
	validator := config.NewExpectationValidator()
	if err := validateExpectationDocuments(validator, rawExpectations); err != nil {
		return err
	}

	expectations, err := expectation.DecodeDocuments(rawExpectations)
	if err != nil {
		return err
	}
	log.Info("loaded expectations", "count", len(expectations), "file", expectationsFile)
	store := expectation.NewReloadableStore(expectations)

	var proxyConfig *httpclient.ProxyConfiguration
	if cfg.ProxyConfiguration != nil {
		p := cfg.ProxyConfiguration
		proxyConfig = httpclient.NewProxyConfiguration(p.Host, p.Port, p.Username, p.Password)
	}
	httpClient := httpclient.New(proxyConfig)

	auditLogger, err := buildAuditLogger(cfg)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	collector := metrics.New()

	deps := dispatch.Dependencies{
		Template:             template.New(),
		ClassCallbacks:       classcallback.NewRegistry(),
		Callbacks:            callback.NewBridge(),
		HTTPClient:           httpClient,
		Metrics:              collector,
		Logger:               log,
		CallbackAwaitTimeout: 5 * time.Second,
	}

	socketTimeout, err := cfg.SocketTimeout()
	if err != nil {
		return err
	}

	auditMaxBodyPreviewSize := 0
	auditIncludeHeaders := true
	if cfg.Audit != nil {
		auditMaxBodyPreviewSize = cfg.Audit.MaxBodyPreviewSize
		auditIncludeHeaders = cfg.Audit.IncludeHeaders
	}

	d := dispatch.New(store, scheduler.New(0), auditLogger, deps, dispatch.Config{
		EnableCORSForAPI:          cfg.EnableCORSForAPI,
		EnableCORSForAllResponses: cfg.EnableCORSForAllResponses,
		SocketConnectionTimeout:   socketTimeout,
		AuditMaxBodyPreviewSize:   auditMaxBodyPreviewSize,
		AuditIncludeHeaders:       auditIncludeHeaders,
	})

	srv := server.New(d, server.Config{
		Addr:                      serveAddr,
		ReadTimeout:               30 * time.Second,
		WriteTimeout:              30 * time.Second,
		ProxyThisRequest:          serveProxyMode,
		LocalAddresses:            config.NewLocalAddressSet(cfg.LocalAddresses),
		MetricsHandler:            collector.Handler(),
		EnableCORSForAPI:          cfg.EnableCORSForAPI,
		EnableCORSForAllResponses: cfg.EnableCORSForAllResponses,
	}, log)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("cli: start server: %w", err)
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if serveWatch {
		go runExpectationsWatch(watchCtx, expectationsFile, validator, store, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	return srv.Stop()
}

// buildLogger assembles the slog.Logger serve runs with, fanning out to
// Loki in addition to the primary text/json handler when --log-loki-url
// is set.
func buildLogger() *slog.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Format = logging.Format(serveLogFormat)
	switch serveLogLevel {
	case "debug":
		logCfg.Level = logging.LevelDebug
	case "warn":
		logCfg.Level = logging.LevelWarn
	case "error":
		logCfg.Level = logging.LevelError
	default:
		logCfg.Level = logging.LevelInfo
	}

	primary := logging.New(logCfg)
	if serveLokiURL == "" {
		return primary
	}

	loki := logging.NewLokiHandler(serveLokiURL, logging.WithLokiLabels(map[string]string{"app": "dispatchd"}))
	return slog.New(logging.NewMultiHandler(primary.Handler(), loki))
}

// buildAuditLogger assembles the audit.Logger serve appends entries to,
// additionally mirroring to stdout when --audit-stdout-mirror is set.
func buildAuditLogger(cfg *config.Config) (audit.Logger, error) {
	primary, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, err
	}
	if !serveAuditStdoutMirror {
		return primary, nil
	}
	return audit.NewMultiLogger(primary, audit.NewJSONLinesStdoutLogger()), nil
}

func runExpectationsWatch(ctx context.Context, path string, validator *config.ExpectationValidator, store *expectation.ReloadableStore, log *slog.Logger) {
	watcher := config.NewWatcher(path, 100*time.Millisecond, log)
	err := watcher.Watch(ctx, func() error {
		raw, err := readExpectationsRaw(path)
		if err != nil {
			return err
		}
		if err := validateExpectationDocuments(validator, raw); err != nil {
			return err
		}
		expectations, err := expectation.DecodeDocuments(raw)
		if err != nil {
			return err
		}
		store.Replace(expectations)
		log.Info("expectations reloaded", "count", len(expectations))
		return nil
	})
	if err != nil && err != context.Canceled {
		log.Error("expectations watcher stopped", "error", err)
	}
}

func readExpectationsRaw(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read %s: %w", path, err)
	}
	return raw, nil
}

func validateExpectationDocuments(validator *config.ExpectationValidator, raw []byte) error {
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("cli: parse expectations file: %w", err)
	}
	for i, doc := range docs {
		if err := validator.Validate(doc); err != nil {
			return fmt.Errorf("cli: expectation at index %d: %w", i, err)
		}
	}
	return nil
}
