package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"hints/internal/wire"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("hintsd v%s\n", version)
	fmt.Println("Pointer injection daemon for the hints keyboard-driven mouse")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hintsd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that executes pointer commands (clicks, movement, scrolling)")
	fmt.Println("  by injecting kernel input events through /dev/uinput. Unprivileged")
	fmt.Println("  clients submit commands over a Unix domain socket; hintsd serializes")
	fmt.Println("  them so concurrent clients cannot interleave button events.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -socket string")
	fmt.Printf("        Unix domain socket path to listen on (default %q)\n", wire.DefaultSocketPath)
	fmt.Println()
	fmt.Println("  -uinput string")
	fmt.Printf("        Path to the uinput control node (default %q)\n", defaultUinputPath)
	fmt.Println()
	fmt.Println("  -status-port int")
	fmt.Println("        HTTP port for /healthz and /metrics (default 0 = disabled)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (requires access to /dev/uinput)")
	fmt.Println("  hintsd")
	fmt.Println()
	fmt.Println("  # Custom socket path and metrics endpoint")
	fmt.Println("  hintsd -socket /run/hints.socket -status-port 9310")
	fmt.Println()
	fmt.Println("  # Full configuration from a file")
	fmt.Println("  hintsd -config /etc/hintsd.yaml")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires write access to /dev/uinput (run as root or install a")
	fmt.Println("    udev rule granting your user access)")
	fmt.Println("  - The socket is created world-writable so unprivileged clients can")
	fmt.Println("    connect; restrict its parent directory if that is too broad")
	fmt.Println("  - Set display.width/display.height in the config file to have the")
	fmt.Println("    daemon reject absolute coordinates outside the screen")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		socketPath  = flag.String("socket", wire.DefaultSocketPath, "Unix domain socket path to listen on")
		uinputPath  = flag.String("uinput", defaultUinputPath, "Path to the uinput control node")
		statusPort  = flag.Int("status-port", 0, "HTTP port for /healthz and /metrics (0 = disabled)")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Build config: defaults, then file, then flag overrides. Only flags the
	// user actually set override the file.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "socket":
			overrides.SocketPath = socketPath
		case "uinput":
			overrides.DevicePath = uinputPath
		case "status-port":
			overrides.StatusPort = statusPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger := setupLogger(logLevel)

	// The absolute axes are sized to the display when bounds are known so a
	// coordinate maps 1:1 to a pixel. Without bounds the axes use the default
	// range and the compositor scales.
	absMaxX := int32(defaultAbsAxisMax)
	absMaxY := int32(defaultAbsAxisMax)
	if cfg.Display.Width > 0 && cfg.Display.Height > 0 {
		absMaxX = int32(cfg.Display.Width - 1)
		absMaxY = int32(cfg.Display.Height - 1)
	}

	devicePath := ExpandPath(cfg.Device.Path)
	openDevice := func() (injector, error) {
		return openUinputPointer(devicePath, absMaxX, absMaxY)
	}

	reg := prometheus.NewRegistry()
	metrics := newDaemonMetrics(reg)

	exec := newExecutor(openDevice, cfg.toPacing(), cfg.toBounds(), metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Debug("configuration",
		"socket", cfg.Socket.Path,
		"uinput", devicePath,
		"write_pause_ms", cfg.Device.WritePauseMS,
		"button_pause_ms", cfg.Device.ButtonPauseMS,
		"settle_ms", cfg.Device.SettleMS,
		"display_width", cfg.Display.Width,
		"display_height", cfg.Display.Height,
		"status_port", cfg.Status.Port)

	// Executor first: the socket server enqueues into it.
	servers := 2
	errCh := make(chan error, 3)
	go func() {
		errCh <- exec.run(ctx)
	}()

	go func() {
		errCh <- runSocketServer(ctx, ExpandPath(cfg.Socket.Path), exec, logger)
	}()

	if cfg.Status.Port > 0 {
		servers++
		go func() {
			errCh <- runStatusServer(ctx, cfg.Status.Port, reg, exec.health, logger)
		}()
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("starting hintsd", "version", version)

	exitCode := 0
	select {
	case sig := <-sigc:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("fatal error", "error", err)
			exitCode = 1
		}
		servers--
	}

	cancel()

	// Wait for the executor to drain and the servers to close their
	// listeners before exiting.
	for i := 0; i < servers; i++ {
		if err := <-errCh; err != nil {
			logger.Error("shutdown error", "error", err)
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}
