package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultUDPPort        = 9999
	defaultHTTPPort       = 8080
	defaultDBPath         = "logs.db"
	defaultQueryTimeout   = 30 * time.Second
	defaultBackupInterval = 6 * time.Hour
	defaultBackupKeep     = 24
	defaultLogRetention   = 0 // days, 0 = disabled
)

// tailSpec pairs a --tail path with its optional --tail-name.
type tailSpec struct {
	Path string
	Name string
}

// appConfig is internal runtime configuration. Defaults come from viper
// (with MAGPIE_* environment overrides); the documented flags override
// both.
type appConfig struct {
	UDPPort        int           `mapstructure:"udp-port"`
	HTTPPort       int           `mapstructure:"http-port"`
	DBPath         string        `mapstructure:"db"`
	CertFile       string        `mapstructure:"cert"`
	KeyFile        string        `mapstructure:"key"`
	LegacyConsole  bool          `mapstructure:"legacy-console"`
	QueryTimeout   time.Duration `mapstructure:"query-timeout"`
	LogRetention   int           `mapstructure:"log-retention"`
	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupDir      string        `mapstructure:"backup-dir"`
	BackupKeepLast int           `mapstructure:"backup-keep-last"`

	Tails []tailSpec `mapstructure:"-"`
}

func usage(program string) string {
	return fmt.Sprintf(`magpie - game log aggregator with MCP access

Usage: %s [options]

Options:
  --udp-port PORT    UDP port for receiving logs (default: %d)
  --http-port PORT   HTTP port for the MCP SSE server (default: %d)
  --db PATH          database path (default: %s)
  --tail PATH        register a file tailer at start (repeatable)
  --tail-name NAME   display name for the preceding --tail
  --cert PATH        TLS certificate (requires --key)
  --key PATH         TLS private key (requires --cert)
  --legacy-console   plain stdout/stderr output instead of the console view
  --help             show this help message

Example:
  %s --udp-port 9999 --http-port 8080 --db game_logs.db --tail server.log
`, program, defaultUDPPort, defaultHTTPPort, defaultDBPath, program)
}

// errHelpRequested signals main to print usage and exit 0.
var errHelpRequested = fmt.Errorf("help requested")

// loadConfig layers viper defaults and MAGPIE_* environment variables under
// the command-line flags.
func loadConfig(args []string) (appConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("MAGPIE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("udp-port", defaultUDPPort)
	v.SetDefault("http-port", defaultHTTPPort)
	v.SetDefault("db", defaultDBPath)
	v.SetDefault("cert", "")
	v.SetDefault("key", "")
	v.SetDefault("legacy-console", false)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("log-retention", defaultLogRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", "")
	v.SetDefault("backup-keep-last", defaultBackupKeep)

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	// Flag surface per the original CLI: each value flag consumes the
	// following argument; --tail-name attaches to the preceding --tail.
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "--help", "-h":
			return cfg, errHelpRequested
		case "--udp-port":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			port, err := strconv.Atoi(s)
			if err != nil {
				return cfg, fmt.Errorf("invalid --udp-port: %q", s)
			}
			cfg.UDPPort = port
		case "--http-port":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			port, err := strconv.Atoi(s)
			if err != nil {
				return cfg, fmt.Errorf("invalid --http-port: %q", s)
			}
			cfg.HTTPPort = port
		case "--db":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			cfg.DBPath = s
		case "--tail":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			cfg.Tails = append(cfg.Tails, tailSpec{Path: s})
		case "--tail-name":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			if len(cfg.Tails) == 0 {
				return cfg, fmt.Errorf("--tail-name must follow a --tail")
			}
			cfg.Tails[len(cfg.Tails)-1].Name = s
		case "--cert":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			cfg.CertFile = s
		case "--key":
			s, err := value()
			if err != nil {
				return cfg, err
			}
			cfg.KeyFile = s
		case "--legacy-console":
			cfg.LegacyConsole = true
		default:
			return cfg, fmt.Errorf("unknown option: %s", arg)
		}
	}

	if cfg.UDPPort <= 0 || cfg.UDPPort > 65535 {
		return cfg, fmt.Errorf("invalid udp-port: %d", cfg.UDPPort)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return cfg, fmt.Errorf("invalid http-port: %d", cfg.HTTPPort)
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return cfg, fmt.Errorf("--cert and --key must be supplied together")
	}

	return cfg, nil
}
