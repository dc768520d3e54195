package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kstaniek/go-cansock/internal/can"
)

type appConfig struct {
	configFile      string
	canIf           string
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	rxTimeout       time.Duration
	openAttempts    int
	loopback        bool
	recvOwn         bool
	filters         []can.Filter
	mdnsEnable      bool
	mdnsName        string
	logMetricsEvery time.Duration
}

// fileConfig is the YAML shape of -config. Nil fields keep the flag default.
type fileConfig struct {
	CANIf              *string        `yaml:"can-if"`
	Listen             *string        `yaml:"listen"`
	LogFormat          *string        `yaml:"log-format"`
	LogLevel           *string        `yaml:"log-level"`
	MetricsAddr        *string        `yaml:"metrics-addr"`
	HubBuffer          *int           `yaml:"hub-buffer"`
	HubPolicy          *string        `yaml:"hub-policy"`
	MaxClients         *int           `yaml:"max-clients"`
	HandshakeTimeout   *time.Duration `yaml:"handshake-timeout"`
	ClientReadTimeout  *time.Duration `yaml:"client-read-timeout"`
	RxTimeout          *time.Duration `yaml:"rx-timeout"`
	OpenAttempts       *int           `yaml:"open-attempts"`
	Loopback           *bool          `yaml:"loopback"`
	RecvOwn            *bool          `yaml:"recv-own"`
	Filters            []can.Filter   `yaml:"filters"`
	MDNSEnable         *bool          `yaml:"mdns-enable"`
	MDNSName           *string        `yaml:"mdns-name"`
	LogMetricsInterval *time.Duration `yaml:"log-metrics-interval"`
}

// parseArgs builds the configuration with precedence flag > env > file > default.
func parseArgs(args []string, stderr io.Writer) (*appConfig, bool, error) {
	cfg := &appConfig{}
	fs := flag.NewFlagSet("cansockd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.configFile, "config", "", "Optional YAML config file")
	fs.StringVar(&cfg.canIf, "can-if", "can0", "SocketCAN interface")
	fs.StringVar(&cfg.listenAddr, "listen", ":20100", "TCP listen address")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "Per-client hub buffer (frames)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", 3*time.Second, "Client handshake timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "Per-connection read deadline")
	fs.DurationVar(&cfg.rxTimeout, "rx-timeout", 200*time.Millisecond, "SO_RCVTIMEO of the CAN socket (bounds shutdown latency)")
	fs.IntVar(&cfg.openAttempts, "open-attempts", 5, "Attempts to open the CAN interface at start-up")
	fs.BoolVar(&cfg.loopback, "loopback", true, "CAN_RAW_LOOPBACK")
	fs.BoolVar(&cfg.recvOwn, "recv-own", false, "CAN_RAW_RECV_OWN_MSGS")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS advertisement")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default cansockd-<hostname>)")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if cfg.configFile != "" {
		if err := applyConfigFile(cfg, cfg.configFile, setFlags); err != nil {
			return nil, false, err
		}
	}
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, false, nil
}

func applyConfigFile(c *appConfig, path string, set map[string]struct{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	fc.apply(c, set)
	return nil
}

func setIfUnset[T any](set map[string]struct{}, name string, dst *T, v *T) {
	if v == nil {
		return
	}
	if _, ok := set[name]; ok {
		return
	}
	*dst = *v
}

func (fc *fileConfig) apply(c *appConfig, set map[string]struct{}) {
	setIfUnset(set, "can-if", &c.canIf, fc.CANIf)
	setIfUnset(set, "listen", &c.listenAddr, fc.Listen)
	setIfUnset(set, "log-format", &c.logFormat, fc.LogFormat)
	setIfUnset(set, "log-level", &c.logLevel, fc.LogLevel)
	setIfUnset(set, "metrics-addr", &c.metricsAddr, fc.MetricsAddr)
	setIfUnset(set, "hub-buffer", &c.hubBuffer, fc.HubBuffer)
	setIfUnset(set, "hub-policy", &c.hubPolicy, fc.HubPolicy)
	setIfUnset(set, "max-clients", &c.maxClients, fc.MaxClients)
	setIfUnset(set, "handshake-timeout", &c.handshakeTO, fc.HandshakeTimeout)
	setIfUnset(set, "client-read-timeout", &c.clientReadTO, fc.ClientReadTimeout)
	setIfUnset(set, "rx-timeout", &c.rxTimeout, fc.RxTimeout)
	setIfUnset(set, "open-attempts", &c.openAttempts, fc.OpenAttempts)
	setIfUnset(set, "loopback", &c.loopback, fc.Loopback)
	setIfUnset(set, "recv-own", &c.recvOwn, fc.RecvOwn)
	setIfUnset(set, "mdns-enable", &c.mdnsEnable, fc.MDNSEnable)
	setIfUnset(set, "mdns-name", &c.mdnsName, fc.MDNSName)
	setIfUnset(set, "log-metrics-interval", &c.logMetricsEvery, fc.LogMetricsInterval)
	if fc.Filters != nil {
		c.filters = fc.Filters
	}
}

// validate checks values and ranges only; it opens nothing.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.canIf == "" || len(c.canIf) > 15 {
		return fmt.Errorf("invalid can-if: %q", c.canIf)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.rxTimeout <= 0 {
		return fmt.Errorf("rx-timeout must be > 0")
	}
	if c.openAttempts <= 0 {
		return fmt.Errorf("open-attempts must be > 0 (got %d)", c.openAttempts)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps CANSOCK_* environment variables to config fields
// unless the corresponding flag was set explicitly. Empty values are ignored.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(k string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", k, err)
		}
	}
	lookup := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := lookup(flagName, key); ok {
			*dst = v
		}
	}
	num := func(flagName, key string, min int, dst *int) {
		if v, ok := lookup(flagName, key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			if n >= min {
				*dst = n
			}
		}
	}
	dur := func(flagName, key string, dst *time.Duration) {
		if v, ok := lookup(flagName, key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(key, err)
				return
			}
			if d >= 0 {
				*dst = d
			}
		}
	}
	boolean := func(flagName, key string, dst *bool) {
		if v, ok := lookup(flagName, key); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				fail(key, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}
	str("can-if", "CANSOCK_IF", &c.canIf)
	str("listen", "CANSOCK_LISTEN", &c.listenAddr)
	str("log-format", "CANSOCK_LOG_FORMAT", &c.logFormat)
	str("log-level", "CANSOCK_LOG_LEVEL", &c.logLevel)
	str("metrics-addr", "CANSOCK_METRICS", &c.metricsAddr)
	num("hub-buffer", "CANSOCK_HUB_BUFFER", 1, &c.hubBuffer)
	str("hub-policy", "CANSOCK_HUB_POLICY", &c.hubPolicy)
	num("max-clients", "CANSOCK_MAX_CLIENTS", 0, &c.maxClients)
	dur("handshake-timeout", "CANSOCK_HANDSHAKE_TIMEOUT", &c.handshakeTO)
	dur("client-read-timeout", "CANSOCK_CLIENT_READ_TIMEOUT", &c.clientReadTO)
	dur("rx-timeout", "CANSOCK_RX_TIMEOUT", &c.rxTimeout)
	num("open-attempts", "CANSOCK_OPEN_ATTEMPTS", 1, &c.openAttempts)
	boolean("loopback", "CANSOCK_LOOPBACK", &c.loopback)
	boolean("recv-own", "CANSOCK_RECV_OWN", &c.recvOwn)
	boolean("mdns-enable", "CANSOCK_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "CANSOCK_MDNS_NAME", &c.mdnsName)
	dur("log-metrics-interval", "CANSOCK_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	return firstErr
}
