package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hints/internal/wire"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("hintsx v%s\n", version)
	fmt.Println("Keyboard-driven pointer control: hint resolution engine")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hintsx [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Runs one hint session: scans the focused window (or the whole screen)")
	fmt.Println("  for interactive elements, assigns each a short label, and resolves")
	fmt.Println("  your keystrokes to a pointer action executed by the hintsd daemon.")
	fmt.Println("  Type a label to click it; hold Shift for right-click, Alt for drag,")
	fmt.Println("  Ctrl for hover. A numeric prefix repeats clicks (2a double-clicks")
	fmt.Println("  label \"a\"). hjkl nudge the pointer, Shift+hjkl scroll; Escape cancels.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -keys string")
	fmt.Println("        Keystroke source: bridge (overlay clients) or tty (default \"bridge\")")
	fmt.Println()
	fmt.Println("  -target string")
	fmt.Println("        Scan region: window or screen (default \"window\")")
	fmt.Println()
	fmt.Println("  -socket string")
	fmt.Printf("        hintsd socket path (default %q)\n", wire.DefaultSocketPath)
	fmt.Println()
	fmt.Println("  -bridge-port int")
	fmt.Println("        Overlay bridge websocket port, 0 disables (default 9311)")
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
	fmt.Println("  # One session against the focused window, overlay on the bridge")
	fmt.Println("  hintsx -config ~/.config/hints/hintsx.yaml")
	fmt.Println()
	fmt.Println("  # Terminal-driven session over the whole screen (no overlay needed)")
	fmt.Println("  hintsx -keys tty -target screen")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - hintsd must be running; start it first (it owns /dev/uinput)")
	fmt.Println("  - Scan backends are external executables listed in the config file;")
	fmt.Println("    without any, the session ends immediately with nothing to show")
	fmt.Println("  - Exit status: 0 committed or nothing to do, 1 failure, 2 cancelled")
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

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		keysFlag    = flag.String("keys", "bridge", "Keystroke source: bridge or tty")
		targetFlag  = flag.String("target", "window", "Scan region: window or screen")
		socketPath  = flag.String("socket", wire.DefaultSocketPath, "hintsd socket path")
		bridgePort  = flag.Int("bridge-port", 9311, "Overlay bridge websocket port (0 = disabled)")
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
		case "keys":
			overrides.Keys = keysFlag
		case "target":
			overrides.Target = targetFlag
		case "socket":
			overrides.SocketPath = socketPath
		case "bridge-port":
			overrides.BridgePort = bridgePort
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

	os.Exit(runEngine(cfg, logger))
}

// runEngine executes one session end to end and returns the exit code:
// 0 committed (or nothing to label), 1 failure, 2 cancelled.
func runEngine(cfg Config, logger *slog.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("interrupted, cancelling session")
		cancel()
	}()

	// Resolve the scan region before anything else: without a region there
	// is nothing to scan and nothing to show.
	ws := detectWindowSystem(os.Getenv)
	logger.Debug("window system detected", "system", ws.String())

	var region scanRegion
	var err error
	if cfg.OverlayTarget == "screen" {
		region, err = screenRegion(ctx, ws)
	} else {
		region, err = activeWindowRegion(ctx, ws)
	}
	if err != nil {
		logger.Error("resolve scan region", "target", cfg.OverlayTarget, "error", err)
		return 1
	}
	logger.Info("scan region", "target", cfg.OverlayTarget, "region", region.String())

	elements, err := runBackends(ctx, cfg.Backends, region, logger)
	if err != nil {
		logger.Error("scan failed", "error", err)
		return 1
	}
	if len(elements) == 0 {
		logger.Info("no elements found, nothing to do")
		return 0
	}
	logger.Info("scan complete", "elements", len(elements))

	alphabet := []rune(cfg.Hints.Alphabet)
	labels, err := allocateLabels(len(elements), alphabet, cfg.Hints.MinLength, cfg.Hints.MaxLength)
	var tooMany *TooManyElementsError
	if errors.As(err, &tooMany) {
		// More candidates than labels: keep the ones closest to the region
		// center and label those.
		cx, cy := region.center()
		logger.Warn("too many elements, truncating",
			"elements", tooMany.Elements, "capacity", tooMany.Capacity)
		elements = truncateElements(elements, tooMany.Capacity, cx, cy)
		labels, err = allocateLabels(len(elements), alphabet, cfg.Hints.MinLength, cfg.Hints.MaxLength)
	}
	if err != nil {
		logger.Error("allocate labels", "error", err)
		return 1
	}

	hints, err := newHintMap(elements, labels)
	if err != nil {
		logger.Error("build hint map", "error", err)
		return 1
	}

	client, err := wire.Dial(ExpandPath(cfg.Socket.Path))
	if err != nil {
		logger.Error("hintsd unreachable; is the daemon running?", "error", err)
		return 1
	}
	defer client.Close()

	var br *bridge
	bridgeDone := make(chan error, 1)
	if cfg.Bridge.Port > 0 {
		br = newBridge(logger, cfg.Bridge)
		go func() { bridgeDone <- br.Run(ctx) }()
	}

	var source keySource
	if cfg.Keys == "tty" {
		source = newTTYKeySource()
	} else {
		source = &bridgeKeySource{bridge: br}
	}
	keys, err := source.Start(ctx)
	if err != nil {
		logger.Error("start key source", "source", cfg.Keys, "error", err)
		return 1
	}
	defer func() {
		if err := source.Stop(); err != nil {
			logger.Warn("stop key source", "error", err)
		}
	}()

	sess := newSession(hints, cfg.bindings(), client, br, cfg.Mouse, logger)
	sess.announceStart(region)
	sess.logger.Info("session started", "labels", hints.len())

	outcome, runErr := sess.run(ctx, keys)

	// Let the bridge flush session_ended before tearing the server down.
	cancel()
	if br != nil {
		if err := <-bridgeDone; err != nil {
			logger.Warn("bridge error", "error", err)
		}
	}

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		logger.Error("session failed", "error", runErr)
		return 1
	case outcome == outcomeCommitted:
		return 0
	default:
		return 2
	}
}
