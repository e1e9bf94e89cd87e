package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ostanin/reelpost/internal/analytics"
	"github.com/ostanin/reelpost/internal/api"
	"github.com/ostanin/reelpost/internal/background"
	"github.com/ostanin/reelpost/internal/config"
	"github.com/ostanin/reelpost/internal/docstore"
	"github.com/ostanin/reelpost/internal/eventlog"
	"github.com/ostanin/reelpost/internal/hub"
	"github.com/ostanin/reelpost/internal/pipeline"
	"github.com/ostanin/reelpost/internal/providers"
	"github.com/ostanin/reelpost/internal/scheduler"
	"github.com/ostanin/reelpost/internal/settings"
	"github.com/ostanin/reelpost/internal/vault"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reelpost server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reelpost server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reelpost system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "reelpost.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "reelpost version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to double-start: probe health, fall back to the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("reelpost is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("reelpost is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the document store.
	store, err := docstore.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}

	// Build the core.
	keyVault := vault.New(store)
	events := eventlog.New(store)
	notifications := hub.New()
	metrics := analytics.New(store)
	settingsMgr := settings.NewManager(store)
	tasks := background.NewManager()

	integrations := providers.NewClient(cfg.Providers, keyVault, metrics, store.AssetsDir())
	encoder := pipeline.NewFFmpegEncoder(cfg.Providers.FFmpegPath)
	runner := pipeline.NewRunner(store, integrations, encoder, events, notifications, metrics)

	sched := scheduler.New(scheduler.Deps{
		Store:    store,
		Pipeline: runner,
		Settings: settingsMgr,
		Events:   events,
		Hub:      notifications,
		Tasks:    tasks,
	})
	sched.Start(ctx)
	defer sched.Stop()

	// Build HTTP handler and server.
	deps := api.Deps{
		Vault:     keyVault,
		Scheduler: sched,
		Runner:    runner,
		Settings:  settingsMgr,
		Events:    events,
		Metrics:   metrics,
		Hub:       notifications,
		Token:     apiToken,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Start MCP server (stdio transport in a goroutine).
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "reelpost listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("reelpost is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop reelpost (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to reelpost (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Script model", "%s", cfg.Providers.ScriptModel)
	printStatus("Image model", "%s", cfg.Providers.ImageModel)
	printStatus("Voice", "%s", cfg.Providers.VoiceID)

	// Show queue and analytics if the server is running.
	if resp != nil && resp.StatusCode == 200 {
		if apiClientInst, err := newAPIClient(); err == nil {
			var snapshot map[string]any
			if r, err := apiClientInst.get(context.Background(), "/analytics"); err == nil {
				if decodeJSON(r, &snapshot) == nil {
					printStatus("Published", "%v", snapshot["published"])
					printStatus("Failures", "%v", snapshot["failures"])
				}
			}
			var jobs []map[string]any
			if r, err := apiClientInst.get(context.Background(), "/jobs"); err == nil {
				if decodeJSON(r, &jobs) == nil {
					pending := 0
					for _, j := range jobs {
						if j["status"] == "pending" {
							pending++
						}
					}
					printStatus("Jobs", "%d total, %d pending", len(jobs), pending)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
