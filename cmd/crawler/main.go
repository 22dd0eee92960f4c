package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/trapcrawl/pkg/config"
	"github.com/Sriram-PR/trapcrawl/pkg/crawler"
	"github.com/Sriram-PR/trapcrawl/pkg/storage"
)

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	configFileFlag := flag.String("config", "config.yaml", "Path to YAML config file")
	logLevelFlag := flag.String("loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	resumeFlag := flag.Bool("resume", false, "Resume crawl using existing frontier DB")
	reportFlag := flag.String("report", "", "Report output path (overrides report_path)")
	validateFlag := flag.Bool("validate", false, "Validate the config file and exit")
	pprofAddr := flag.String("pprof", "", "Address for pprof HTTP server (e.g. 'localhost:6060', empty to disable)")
	flag.Parse()

	if *validateFlag {
		os.Exit(doValidate(*configFileFlag, os.Stdout, os.Stderr))
	}

	// --- Logger Configuration ---
	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	// --- Load Application Configuration ---
	appCfg, err := loadConfig(*configFileFlag)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *reportFlag != "" {
		appCfg.ReportPath = *reportFlag
	}

	runID := uuid.NewString()
	runLog := log.WithField("run_id", runID)
	logAppConfig(appCfg, runLog)

	// --- Start pprof HTTP Server (Optional) ---
	if *pprofAddr != "" {
		go func() {
			runLog.Infof("Starting pprof HTTP server on: http://%s/debug/pprof/", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				runLog.Errorf("Pprof server failed to start on %s: %v", *pprofAddr, err)
			}
		}()
	}

	// --- Context & Signal Handling ---
	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		runLog.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelCrawl()

		select {
		case sig = <-sigChan:
			runLog.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			runLog.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Components ---
	store, err := storage.NewBadgerStore(appCfg.StateDir, appCfg.RootDomain, *resumeFlag, runLog.WithField("component", "storage"))
	if err != nil {
		runLog.Fatalf("Failed to initialize frontier DB: %v", err)
	}

	c, err := crawler.New(appCfg, store, runLog)
	if err != nil {
		store.Close()
		runLog.Fatalf("Failed to initialize crawler: %v", err)
	}

	// --- Run ---
	startedAt := time.Now()
	runErr := c.Run(crawlCtx, *resumeFlag)
	finishedAt := time.Now()

	// The report reflects whatever was crawled, including after cancellation.
	outErr := c.WriteOutputs(appCfg.ReportPath, appCfg.SummaryYAMLPath, crawler.RunInfo{
		ID:         runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	})
	if outErr != nil {
		runLog.Errorf("Failed to write crawl outputs: %v", outErr)
	}
	if err := store.Close(); err != nil {
		runLog.Errorf("Failed to close frontier DB: %v", err)
	}

	// --- Exit ---
	switch {
	case errors.Is(runErr, context.Canceled):
		runLog.Warn("Crawl cancelled gracefully. Re-run with -resume to continue.")
		os.Exit(0)
	case runErr != nil:
		runLog.Errorf("Crawl finished with error: %v", runErr)
		os.Exit(1)
	case outErr != nil:
		os.Exit(1)
	}
	runLog.Info("Crawl completed successfully.")
}

// loadConfig reads and decodes the YAML config at path without validating it.
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// doValidate loads and validates the config, printing warnings. Returns the exit code.
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: %d seed URL(s), %d allowed domain(s), root domain %s\n",
		len(appCfg.SeedURLs), len(appCfg.AllowedDomains), appCfg.RootDomain)
	fmt.Fprintln(stdout, "Configuration valid")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Entry) {
	log.Infof("Config: Seeds:%d, AllowedDomains:%v, RootDomain:%s",
		len(appCfg.SeedURLs), appCfg.AllowedDomains, appCfg.RootDomain)
	log.Infof("Config: Workers:%d, MaxReqs:%d, TimeDelay:%v, UserAgent:%q",
		appCfg.NumWorkers, appCfg.MaxRequests, appCfg.TimeDelay, appCfg.UserAgent)
	log.Infof("Config Thresholds: NearDuplicateBits:%d, DeadPageBytes:%d, MaxBodyBytes:%d",
		appCfg.NearDuplicateThreshold, appCfg.DeadPageBytes, appCfg.MaxBodyBytes)
	log.Infof("Config Robots: Timeout:%v, AllowOnFailure:%t",
		appCfg.RobotsTimeout, appCfg.GetEffectiveAllowOnRobotsFailure())
	if appCfg.UseSitemaps {
		log.Infof("Config Sitemaps: enabled, MaxSitemaps:%d", appCfg.MaxSitemaps)
	}
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Config Output: StateDir:%s, Report:%s, Summary:%q",
		appCfg.StateDir, appCfg.ReportPath, appCfg.SummaryYAMLPath)
}
