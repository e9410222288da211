package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/api"
	"github.com/routinely/routined/internal/config"
	"github.com/routinely/routined/internal/controller"
	"github.com/routinely/routined/internal/db"
	"github.com/routinely/routined/internal/notify"
	"github.com/routinely/routined/internal/scheduler"
	"github.com/routinely/routined/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		return
	}

	switch os.Args[1] {
	case "version", "--version", "-v":
		fmt.Println(version.Info())
	case "help", "--help", "-h":
		printHelp()
	case "daemon":
		if err := runDaemon(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "serve":
		if err := runServer(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "rollover":
		if err := runRollover(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

// stack wires up the shared daemon components in dependency order.
type stack struct {
	cfg        *config.Config
	database   *db.DB
	engine     *alarm.Engine
	controller *controller.Controller
	service    *scheduler.Service
	dispatcher *notify.Dispatcher
}

func buildStack(configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	engine := alarm.NewEngine(cfg.AlarmBuffer)
	registry := alarm.NewRegistry(engine)
	ctrl := controller.New(database, registry)

	service, err := scheduler.New(database, ctrl, engine, cfg.RolloverSpec)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	dispatcher := notify.New(engine, cfg.Webhooks.SlackURL, cfg.Webhooks.DiscordURL)

	return &stack{
		cfg:        cfg,
		database:   database,
		engine:     engine,
		controller: ctrl,
		service:    service,
		dispatcher: dispatcher,
	}, nil
}

func (s *stack) start() error {
	s.dispatcher.Start()
	if err := s.service.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	return nil
}

func (s *stack) stop() {
	s.service.Stop()
	s.dispatcher.Wait()
	s.database.Close()
}

func runDaemon(args []string) error {
	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := daemonCmd.String("config", "", "Path to config file")
	_ = daemonCmd.Parse(args)

	st, err := buildStack(*configPath)
	if err != nil {
		return err
	}

	pidPath := st.cfg.PIDPath()
	if pid, running := isDaemonRunning(pidPath); running {
		st.database.Close()
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		st.database.Close()
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := st.start(); err != nil {
		st.database.Close()
		return err
	}
	defer st.stop()

	fmt.Println("routined daemon started")
	fmt.Printf("PID: %d\n", os.Getpid())
	fmt.Printf("Database: %s\n", st.cfg.DBPath())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	return nil
}

func runServer(args []string) error {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := serveCmd.String("config", "", "Path to config file")
	port := serveCmd.Int("port", 0, "HTTP server port (overrides config)")
	_ = serveCmd.Parse(args)

	st, err := buildStack(*configPath)
	if err != nil {
		return err
	}

	if err := st.start(); err != nil {
		st.database.Close()
		return err
	}
	defer st.stop()

	server := api.NewServer(st.database, st.controller)

	listenPort := st.cfg.Port
	if *port != 0 {
		listenPort = *port
	}
	addr := fmt.Sprintf(":%d", listenPort)
	fmt.Printf("routined API server starting on %s\n", addr)
	fmt.Printf("Database: %s\n", st.cfg.DBPath())

	srv := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

// runRollover performs a single midnight reset pass and exits. Useful for
// catching up after the machine was asleep at midnight.
func runRollover(args []string) error {
	rolloverCmd := flag.NewFlagSet("rollover", flag.ExitOnError)
	configPath := rolloverCmd.String("config", "", "Path to config file")
	_ = rolloverCmd.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer database.Close()

	engine := alarm.NewEngine(cfg.AlarmBuffer)
	ctrl := controller.New(database, alarm.NewRegistry(engine))

	res, err := ctrl.Rollover()
	if err != nil {
		return fmt.Errorf("rollover: %w", err)
	}

	fmt.Printf("Rollover complete: %d processed, %d reset, %d failed\n",
		res.Processed, res.Reset, res.Failed)
	return nil
}

// isDaemonRunning checks if a daemon is running by reading PID file and checking process
func isDaemonRunning(pidPath string) (int, bool) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// On Unix, FindProcess always succeeds, so send signal 0 to check if alive
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}

	return pid, true
}

func printHelp() {
	fmt.Println(`routined - Routine and task alarm daemon

Usage:
  routined daemon           Run the alarm scheduler in the foreground
  routined serve            Run the HTTP API server (scheduler included)
  routined rollover         Run a one-off midnight reset pass and exit
  routined version          Show version information
  routined help             Show this help message

Options (daemon, serve, rollover):
  --config                  Path to config file (default: <data dir>/config.yaml)

Serve Options:
  --port                    HTTP server port (overrides config)

Environment Variables:
  ROUTINED_DATA             Override data directory (default: ~/.routined)`)
}
