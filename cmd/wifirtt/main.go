package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"wifirtt/internal/api"
	"wifirtt/internal/config"
	"wifirtt/internal/logging"
	"wifirtt/internal/metrics"
	"wifirtt/internal/model"
	"wifirtt/internal/probe"
	"wifirtt/internal/server"
	"wifirtt/internal/stunutil"
	"wifirtt/internal/topology"
	"wifirtt/internal/tui"
)

const usage = `wifirtt - Wi-Fi proximity and round-trip latency monitor

Usage:
  wifirtt init --config <path>
  wifirtt serve [--config <path>] [--listen :3000] [--scanner <path>] [--static <dir>] [--log-level info]
  wifirtt probe [--config <path>] [--samples 5] [--rounds 1] [--every 3s] [--csv] <ipv4>
  wifirtt stun [--config <path>] [--stun <servers>]
  wifirtt rtt [--server <url>] <ipv4>
  wifirtt scan [--server <url> | --local [--config <path>]]
  wifirtt arp [--server <url> | --local [--config <path>]]
  wifirtt snapshot [--server <url>]
  wifirtt status [--server <url>]
  wifirtt watch [--server <url>]
`

const defaultServer = "localhost:3000"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "serve":
		handleServe(os.Args[2:])
	case "probe":
		handleProbe(os.Args[2:])
	case "stun":
		handleSTUN(os.Args[2:])
	case "rtt":
		handleRTT(os.Args[2:])
	case "scan":
		handleScan(os.Args[2:])
	case "arp":
		handleARP(os.Args[2:])
	case "snapshot":
		handleSnapshot(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "watch":
		handleWatch(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "listen address")
	scanner := fs.String("scanner", "", "scanner executable path")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}
	cfg := config.Config{Server: &config.ServerConfig{}}
	overrideServer(cfg.Server, *listen, *scanner, "", "", *stunList)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "listen address")
	scanner := fs.String("scanner", "", "scanner executable path")
	static := fs.String("static", "", "static asset directory")
	logLevel := fs.String("log-level", "", "debug|info|warn|error")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	cfg := serverConfig(*configPath)
	overrideServer(cfg.Server, *listen, *scanner, *static, *logLevel, *stunList)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	log := logging.Setup(cfg.Server.LogLevel)
	ctx, cancel := signalContext()
	defer cancel()

	srv := server.NewServer(*cfg.Server, log)
	fatal(srv.ListenAndServe(ctx))
}

func handleProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	samples := fs.Int("samples", 0, "TCP connect attempts (0 = config)")
	rounds := fs.Int("rounds", 1, "number of measurement rounds")
	every := fs.Duration("every", 3*time.Second, "delay between rounds")
	asCSV := fs.Bool("csv", false, "print CSV rows instead of text")
	logLevel := fs.String("log-level", "warn", "debug|info|warn|error")
	_ = fs.Parse(args)

	host, err := probeTarget(fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	cfg := serverConfig(*configPath)
	if *samples > 0 {
		cfg.Server.TCPSamples = *samples
	}
	log := logging.Setup(*logLevel)

	ctx, cancel := signalContext()
	defer cancel()

	prober := probe.New(probe.OptionsFromConfig(*cfg.Server), nil, nil, log)
	out := metrics.NewCSVWriter(os.Stdout)
	for i := 0; i < *rounds; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(*every):
			}
		}
		res := prober.MeasureHost(ctx, host)
		if ctx.Err() != nil {
			return
		}
		if *asCSV {
			fatal(out.Write(time.Now(), res))
			continue
		}
		printHostLatency(os.Stdout, res)
	}
}

// probeTarget checks the host before it is handed to ping.
func probeTarget(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("target IPv4 address required")
	}
	host, err := probe.ValidateHost(arg)
	if err != nil {
		return "", fmt.Errorf("%q: %w", arg, err)
	}
	return host, nil
}

func handleSTUN(args []string) {
	fs := flag.NewFlagSet("stun", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	cfg := serverConfig(*configPath)
	servers := cfg.Server.STUNServers
	if *stunList != "" {
		servers = splitList(*stunList)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := stunutil.Probe(ctx, servers, cfg.Server.STUNTimeout)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "public_addr=%s nat_type=%s\n", res.PublicAddr, res.NATType)
}

func handleRTT(args []string) {
	fs := flag.NewFlagSet("rtt", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	_ = fs.Parse(args)

	host := fs.Arg(0)
	if host == "" {
		fatal(errors.New("target IPv4 address required"))
	}

	client := api.NewClient(normalizeBaseURL(*serverAddr))
	res, err := client.RTT(context.Background(), host)
	if err != nil {
		fatal(err)
	}
	printHostLatency(os.Stdout, res)
}

func handleScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	local := fs.Bool("local", false, "run the scanner directly instead of asking a server")
	configPath := fs.String("config", "", "path to YAML config (with --local)")
	_ = fs.Parse(args)

	var (
		res model.ScanResult
		err error
	)
	if *local {
		res, err = localCollector(*configPath).FetchScan(context.Background())
	} else {
		res, err = api.NewClient(normalizeBaseURL(*serverAddr)).Scan(context.Background())
	}
	if err != nil {
		fatal(err)
	}
	printNetworks(os.Stdout, res)
}

func handleARP(args []string) {
	fs := flag.NewFlagSet("arp", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	local := fs.Bool("local", false, "read the local table instead of asking a server")
	configPath := fs.String("config", "", "path to YAML config (with --local)")
	_ = fs.Parse(args)

	var entries []model.AddressEntry
	if *local {
		entries = localCollector(*configPath).FetchAddressTable(context.Background())
	} else {
		var err error
		entries, err = api.NewClient(normalizeBaseURL(*serverAddr)).ARP(context.Background())
		if err != nil {
			fatal(err)
		}
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no entries")
		return
	}
	fmt.Fprintf(os.Stdout, "%-15s  %-17s\n", "IP", "MAC")
	for _, e := range entries {
		fmt.Fprintf(os.Stdout, "%-15s  %-17s\n", e.IP, e.MAC)
	}
}

func handleSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*serverAddr))
	snap, err := client.Snapshot(context.Background())
	if err != nil {
		fatal(err)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	fatal(encoder.Encode(snap))
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*serverAddr))
	health, err := client.Health(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "status=%s state=%s viewers=%d\n", health.Status, health.State, health.Viewers)
}

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverAddr := fs.String("server", defaultServer, "measurement server address")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*serverAddr))
	endpoint, err := client.WatchURL()
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := tea.NewProgram(tui.NewWatchModel(endpoint), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := client.Watch(ctx, func(m api.StreamMessage) error {
			if m.Snapshot != nil {
				p.Send(tui.SnapshotMsg{Snapshot: *m.Snapshot, At: time.Now()})
			} else {
				p.Send(tui.StreamErrorMsg{Err: m.Err, At: time.Now()})
			}
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return
		}
		p.Send(tui.ClosedMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fatal(err)
	}
}

// serverConfig loads the optional config file and fills defaults, so every
// command works without one.
func serverConfig(path string) config.Config {
	cfg, err := loadConfig(path)
	if err != nil {
		fatal(err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	config.ApplyDefaults(&cfg)
	return cfg
}

func localCollector(configPath string) *topology.Collector {
	cfg := serverConfig(configPath)
	return topology.NewCollector(*cfg.Server, nil, logging.Setup(cfg.Server.LogLevel))
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrideServer(cfg *config.ServerConfig, listen, scanner, static, logLevel, stunList string) {
	if listen != "" {
		cfg.Listen = listen
	}
	if scanner != "" {
		cfg.ScannerPath = scanner
	}
	if static != "" {
		cfg.StaticDir = static
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stunList != "" {
		cfg.STUNServers = splitList(stunList)
	}
}

func printHostLatency(w io.Writer, h model.HostLatency) {
	fmt.Fprintf(w, "host %s\n", h.Host)
	fmt.Fprintf(w, "  %-11s %s\n", model.TechniqueTCP, formatSummary(h.TCP))
	fmt.Fprintf(w, "  %-11s %s\n", model.TechniqueICMP, formatSummary(h.ICMP))
	if h.KernelRTTMs != nil {
		fmt.Fprintf(w, "  %-11s %.3fms\n", "kernel-rtt", *h.KernelRTTMs)
	}
}

func formatSummary(s *model.LatencySummary) string {
	if s == nil {
		return "unreachable"
	}
	out := fmt.Sprintf("avg=%.2fms min=%.2fms max=%.2fms samples=%d", s.AvgMs, s.MinMs, s.MaxMs, s.Samples)
	if s.JitterMs != nil {
		out += fmt.Sprintf(" jitter=%.2fms", *s.JitterMs)
	}
	return out
}

func printNetworks(w io.Writer, res model.ScanResult) {
	if res.ConnectedSSID != nil {
		fmt.Fprintf(w, "connected: %s", *res.ConnectedSSID)
		if gw, ok := res.Gateway(); ok {
			fmt.Fprintf(w, " gateway=%s", gw)
		}
		fmt.Fprintln(w)
	}
	if len(res.Networks) == 0 {
		fmt.Fprintln(w, "no networks")
		return
	}
	fmt.Fprintf(w, "%-24s  %-17s  %-5s  %-4s  %-7s  %-5s\n", "SSID", "BSSID", "RSSI", "CH", "BAND", "MHZ")
	for _, n := range res.Networks {
		fmt.Fprintf(w, "%-24s  %-17s  %-5d  %-4d  %-7s  %-5d\n", n.SSID, n.BSSID, n.RSSI, n.Channel, n.Band, n.BandwidthMHz)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, topology.ErrScanUnavailable) {
		os.Exit(3)
	}
	os.Exit(1)
}
