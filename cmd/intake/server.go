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
	"golang.org/x/sync/errgroup"

	"github.com/intakehq/intake/internal/api"
	"github.com/intakehq/intake/internal/config"
	"github.com/intakehq/intake/internal/conversation"
	"github.com/intakehq/intake/internal/metrics"
	"github.com/intakehq/intake/internal/script"
	"github.com/intakehq/intake/internal/session"
	"github.com/intakehq/intake/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the intake server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show intake system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// pidFilePath places the PID file in the data dir, or the system temp dir
// when leads are kept in memory.
func pidFilePath(dataDir string) string {
	if dataDir == ":memory:" {
		return filepath.Join(os.TempDir(), "intake.pid")
	}
	return filepath.Join(dataDir, "intake.pid")
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

func buildSessionStore(cfg config.Config) (session.Store, error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), nil
	}

	ttl, err := cfg.Session.TTLDuration()
	if err != nil {
		return nil, err
	}
	opts := []session.RedisOption{session.WithPrefix(cfg.Session.RedisPrefix)}
	if ttl > 0 {
		opts = append(opts, session.WithTTL(ttl))
	}
	return session.NewRedisStore(cfg.Session.RedisAddr, opts...), nil
}

func loadScript(cfg config.Config) (*script.Script, error) {
	if cfg.Script.Path == "" {
		return script.Default(), nil
	}
	return script.Load(cfg.Script.Path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "intake version %s\n", version)

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

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("intake is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("intake is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open lead storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Session store per configured backend.
	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return err
	}
	slog.Info("session store ready", "backend", cfg.Session.Backend)

	// Conversation script.
	scr, err := loadScript(cfg)
	if err != nil {
		return fmt.Errorf("loading script: %w", err)
	}
	slog.Info("script loaded", "steps", scr.Len())

	m := metrics.New()
	engine := conversation.NewEngine(conversation.Deps{
		Sessions: sessions,
		Leads:    store,
		Script:   scr,
		Metrics:  m,
		Logger:   slog.Default(),
	})

	handler := api.NewAppHandler(api.AppDeps{
		Engine:      engine,
		Leads:       store,
		CORSOrigins: cfg.Server.Origins(),
		Metrics:     m.Handler(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio, HTTP server, and a shutdown watcher run in one
	// errgroup so any failure tears the rest down.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Engine: engine, Leads: store})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "intake listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("intake is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop intake (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to intake (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Session backend", "%s", cfg.Session.Backend)
	if cfg.Session.Backend == "redis" {
		printStatus("Redis", "%s", cfg.Session.RedisAddr)
	}

	// Show lead count if the server is up.
	if running {
		c := &apiClient{baseURL: serverURL, httpClient: client}
		leadsResp, err := c.get(ctx, "/api/leads")
		if err == nil {
			var leads []struct {
				ID string `json:"id"`
			}
			if decodeJSON(leadsResp, &leads) == nil {
				printStatus("Leads", "%d", len(leads))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
