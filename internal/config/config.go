package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen         = ":3000"
	DefaultStaticDir      = "public"
	DefaultScannerPath    = "WifiScanner.app/Contents/MacOS/wifi-scanner"
	DefaultScanTimeout    = 10 * time.Second
	DefaultARPTimeout     = 5 * time.Second
	DefaultTickInterval   = 3 * time.Second
	DefaultTCPPort        = 80
	DefaultTCPSamples     = 5
	DefaultTCPStagger     = 50 * time.Millisecond
	DefaultICMPSamples    = 10
	DefaultICMPInterval   = 100 * time.Millisecond
	DefaultICMPTimeout    = 15 * time.Second
	DefaultAttemptTimeout = 2 * time.Second
	DefaultSTUNTimeout    = 3 * time.Second
	DefaultViewerQueue    = 4
	DefaultLogLevel       = "info"

	DefaultScanBreakerFailures = 3
	DefaultScanBreakerCooldown = 30 * time.Second
	DefaultRTTRateLimit        = 30
	DefaultRTTBurst            = 5
)

// Config is the top-level YAML document.
type Config struct {
	Server *ServerConfig `yaml:"server,omitempty"`
}

// ServerConfig holds every tunable of the measurement server. Zero values are
// replaced by the Default* constants.
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	StaticDir      string        `yaml:"static_dir"`
	ScannerPath    string        `yaml:"scanner_path"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ARPTimeout     time.Duration `yaml:"arp_timeout"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	TCPPort        int           `yaml:"tcp_port"`
	TCPSamples     int           `yaml:"tcp_samples"`
	TCPStagger     time.Duration `yaml:"tcp_stagger"`
	ICMPSamples    int           `yaml:"icmp_samples"`
	ICMPInterval   time.Duration `yaml:"icmp_interval"`
	ICMPTimeout    time.Duration `yaml:"icmp_timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	STUNServers    []string      `yaml:"stun_servers"`
	STUNTimeout    time.Duration `yaml:"stun_timeout"`
	ViewerQueue    int           `yaml:"viewer_queue"`
	LogLevel       string        `yaml:"log_level"`

	// ScanBreakerFailures consecutive scanner failures open the circuit for
	// ScanBreakerCooldown. A negative value disables the breaker.
	ScanBreakerFailures int           `yaml:"scan_breaker_failures"`
	ScanBreakerCooldown time.Duration `yaml:"scan_breaker_cooldown"`
	// RTTRateLimit is the number of /api/rtt requests per minute allowed per
	// client address. A negative value disables limiting.
	RTTRateLimit int `yaml:"rtt_rate_limit"`
	RTTBurst     int `yaml:"rtt_burst"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("config must contain a server section")
	}
	s := cfg.Server
	if s.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if s.ScannerPath == "" {
		return fmt.Errorf("server.scanner_path is required")
	}
	if s.TCPSamples < 0 || s.ICMPSamples < 0 {
		return fmt.Errorf("sample counts must not be negative")
	}
	if s.TCPPort <= 0 || s.TCPPort > 65535 {
		return fmt.Errorf("server.tcp_port %d out of range", s.TCPPort)
	}
	if s.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("server.tick_interval %s is too short", s.TickInterval)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		return
	}
	s := cfg.Server
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.StaticDir == "" {
		s.StaticDir = DefaultStaticDir
	}
	if s.ScannerPath == "" {
		s.ScannerPath = DefaultScannerPath
	}
	if s.ScanTimeout == 0 {
		s.ScanTimeout = DefaultScanTimeout
	}
	if s.ARPTimeout == 0 {
		s.ARPTimeout = DefaultARPTimeout
	}
	if s.TickInterval == 0 {
		s.TickInterval = DefaultTickInterval
	}
	if s.TCPPort == 0 {
		s.TCPPort = DefaultTCPPort
	}
	if s.TCPSamples == 0 {
		s.TCPSamples = DefaultTCPSamples
	}
	if s.TCPStagger == 0 {
		s.TCPStagger = DefaultTCPStagger
	}
	if s.ICMPSamples == 0 {
		s.ICMPSamples = DefaultICMPSamples
	}
	if s.ICMPInterval == 0 {
		s.ICMPInterval = DefaultICMPInterval
	}
	if s.ICMPTimeout == 0 {
		s.ICMPTimeout = DefaultICMPTimeout
	}
	if s.AttemptTimeout == 0 {
		s.AttemptTimeout = DefaultAttemptTimeout
	}
	if s.STUNTimeout == 0 {
		s.STUNTimeout = DefaultSTUNTimeout
	}
	if s.ViewerQueue == 0 {
		s.ViewerQueue = DefaultViewerQueue
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.ScanBreakerFailures == 0 {
		s.ScanBreakerFailures = DefaultScanBreakerFailures
	}
	if s.ScanBreakerCooldown == 0 {
		s.ScanBreakerCooldown = DefaultScanBreakerCooldown
	}
	if s.RTTRateLimit == 0 {
		s.RTTRateLimit = DefaultRTTRateLimit
	}
	if s.RTTBurst == 0 {
		s.RTTBurst = DefaultRTTBurst
	}
}
