package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/benchscope/pkg/cache"
	"github.com/umputun/benchscope/pkg/collector"
	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/enhancer"
	"github.com/umputun/benchscope/pkg/notifier"
	"github.com/umputun/benchscope/pkg/pipeline"
	"github.com/umputun/benchscope/pkg/prefilter"
	"github.com/umputun/benchscope/pkg/scorer"
	"github.com/umputun/benchscope/pkg/storage"
)

// Opts with all CLI options; secrets come from the environment
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file"`

	LLMKey        string `long:"llm-key" env:"LLM_API_KEY" description:"LLM API key"`
	AppID         string `long:"app-id" env:"STORAGE_APP_ID" description:"spreadsheet backend app id"`
	AppSecret     string `long:"app-secret" env:"STORAGE_APP_SECRET" description:"spreadsheet backend app secret"`
	AppToken      string `long:"app-token" env:"STORAGE_APP_TOKEN" description:"spreadsheet backend app token"`
	TableID       string `long:"table-id" env:"STORAGE_TABLE_ID" description:"spreadsheet table id"`
	WebhookURL    string `long:"webhook" env:"WEBHOOK_URL" description:"chat webhook url"`
	WebhookSecret string `long:"webhook-secret" env:"WEBHOOK_SECRET" description:"chat webhook signing secret"`
	CacheURL      string `long:"cache-url" env:"CACHE_URL" description:"KV cache url (optional)"`
	GithubToken   string `long:"github-token" env:"GITHUB_TOKEN" description:"code-host API token (optional)"`

	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		// apply env overrides before giving up, the config file may carry
		// placeholders for values provided via environment only
		cfg, err = loadWithOverrides(opts)
		if err != nil {
			log.Printf("[ERROR] configuration invalid, refusing to run: %v", err)
			os.Exit(1)
		}
	} else {
		applyOverrides(cfg, opts)
		if err := revalidate(cfg); err != nil {
			log.Printf("[ERROR] configuration invalid, refusing to run: %v", err)
			os.Exit(1)
		}
	}

	logFile := setupLog(opts.Debug, cfg.Logs.Directory, opts.NoColor,
		opts.LLMKey, opts.AppSecret, opts.WebhookSecret)
	if logFile != nil {
		defer logFile.Close()
	}

	log.Printf("[INFO] starting benchscope version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Printf("[ERROR] run failed: %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	log.Print("[INFO] run complete")
}

// run wires the stages and executes the pipeline once
func run(ctx context.Context, cfg *config.Config) error {
	kv := cache.New(ctx, cfg.Cache.URL, cfg.Cache.KeyPrefix)
	defer kv.Close()

	bitable := storage.NewBitable(cfg.Storage, cfg.LLM.Weights)
	fallback, err := storage.NewFallback(ctx, cfg.Storage.FallbackDSN, cfg.LLM.Weights)
	if err != nil {
		return fmt.Errorf("open fallback store: %w", err)
	}
	defer fallback.Close()
	manager := storage.NewManager(bitable, fallback, cfg.Storage.Retention)

	history, err := storage.NewHistory(ctx, cfg.Notify.HistoryDSN)
	if err != nil {
		return fmt.Errorf("open notification history: %w", err)
	}
	defer history.Close()

	var collectors []collector.Collector
	if cfg.Sources.Arxiv.Enabled {
		collectors = append(collectors, collector.NewArxiv(cfg.Sources.Arxiv))
	}
	if cfg.Sources.HELM.Enabled {
		collectors = append(collectors, collector.NewHELM(cfg.Sources.HELM))
	}
	if cfg.Sources.GitHub.Enabled {
		collectors = append(collectors, collector.NewGitHub(cfg.Sources.GitHub))
	}
	if cfg.Sources.HuggingFace.Enabled {
		collectors = append(collectors, collector.NewHuggingFace(cfg.Sources.HuggingFace))
	}
	if cfg.Sources.TechEmpower.Enabled {
		collectors = append(collectors, collector.NewTechEmpower(cfg.Sources.TechEmpower))
	}
	if cfg.Sources.DBEngines.Enabled {
		collectors = append(collectors, collector.NewDBEngines(cfg.Sources.DBEngines))
	}
	if cfg.Sources.SemanticScholar.Enabled {
		collectors = append(collectors, collector.NewSemanticScholar(cfg.Sources.SemanticScholar))
	}

	var enh pipeline.Enhancer
	if cfg.Enhancer.Enabled {
		var renderer enhancer.PageRenderer
		if r := enhancer.NewPopplerRenderer(); r != nil {
			renderer = r
		} else {
			lgr.Printf("[WARN] pdftoppm not found, cover images disabled")
		}
		parser := enhancer.NewHTTPParser(cfg.Enhancer.ParserURL, cfg.Enhancer.Timeout)
		enh = enhancer.New(cfg.Enhancer, parser, renderer, bitable, kv)
	}

	pipe := pipeline.New(
		collectors,
		prefilter.New(cfg.EnabledSources()),
		enh,
		scorer.New(cfg.LLM, kv),
		manager,
		notifier.New(cfg.Notify, cfg.LLM.Weights, history, cfg.Storage.TableURL),
		cfg.LLM.Weights,
		cfg.Storage.DedupWindows,
	)

	_, err = pipe.Run(ctx)
	return err
}

// applyOverrides injects env-provided secrets into the loaded config
func applyOverrides(cfg *config.Config, opts Opts) {
	if opts.LLMKey != "" {
		cfg.LLM.APIKey = opts.LLMKey
	}
	if opts.AppID != "" {
		cfg.Storage.AppID = opts.AppID
	}
	if opts.AppSecret != "" {
		cfg.Storage.AppSecret = opts.AppSecret
	}
	if opts.AppToken != "" {
		cfg.Storage.AppToken = opts.AppToken
	}
	if opts.TableID != "" {
		cfg.Storage.TableID = opts.TableID
	}
	if opts.WebhookURL != "" {
		cfg.Notify.WebhookURL = opts.WebhookURL
	}
	if opts.WebhookSecret != "" {
		cfg.Notify.WebhookSecret = opts.WebhookSecret
	}
	if opts.CacheURL != "" {
		cfg.Cache.URL = opts.CacheURL
	}
	if opts.GithubToken != "" {
		cfg.Sources.GitHub.Token = opts.GithubToken
	}
}

// loadWithOverrides retries the config load with env values already applied,
// covering configs that rely entirely on the environment for secrets
func loadWithOverrides(opts Opts) (*config.Config, error) {
	setIfEmpty := func(key, val string) {
		if val != "" && os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	setIfEmpty("LLM_API_KEY", opts.LLMKey)
	setIfEmpty("STORAGE_APP_ID", opts.AppID)
	setIfEmpty("STORAGE_APP_SECRET", opts.AppSecret)
	setIfEmpty("STORAGE_APP_TOKEN", opts.AppToken)
	setIfEmpty("STORAGE_TABLE_ID", opts.TableID)
	return config.Load(opts.Config)
}

// revalidate re-runs validation after overrides filled required values
func revalidate(cfg *config.Config) error {
	if cfg.LLM.APIKey == "" && cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm api key is required")
	}
	if cfg.Storage.AppID == "" || cfg.Storage.AppSecret == "" ||
		cfg.Storage.AppToken == "" || cfg.Storage.TableID == "" {
		return fmt.Errorf("spreadsheet backend credentials are required")
	}
	return nil
}

// setupLog configures lgr with colors, secret masking and the per-run log
// file at logs/<YYYYMMDD>.log
func setupLog(dbg bool, logDir string, noColor bool, secrets ...string) io.Closer {
	logOpts := []lgr.Option{}
	if dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError)
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	var mask []string
	for _, s := range secrets {
		if s != "" {
			mask = append(mask, s)
		}
	}
	if len(mask) > 0 {
		logOpts = append(logOpts, lgr.Secret(mask...))
	}

	var logFile io.Closer
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			log.Printf("[WARN] can't create log dir %s: %v", logDir, err)
		} else {
			name := filepath.Join(logDir, time.Now().Format("20060102")+".log")
			f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path under our log dir
			if err != nil {
				log.Printf("[WARN] can't open log file %s: %v", name, err)
			} else {
				logOpts = append(logOpts, lgr.Out(io.MultiWriter(os.Stdout, f)))
				logFile = f
			}
		}
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
	return logFile
}
