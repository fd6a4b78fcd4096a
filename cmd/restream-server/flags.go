package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/grzechuj/RtspRestreamServer/internal/config"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to merging into the file
// configuration, so main.go can validate and map.
type cliConfig struct {
	configPath  string
	listenAddr  string
	apiListen   string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := pflag.NewFlagSet("restream-server", pflag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVarP(&cfg.configPath, "config", "c", "", "Path to YAML configuration file")
	fs.StringVar(&cfg.listenAddr, "listen", "", "RTSP listen address (overrides config)")
	fs.StringVar(&cfg.apiListen, "api-listen", "", "Status API listen address (overrides config, implies enabled)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.logLevel != "" {
		switch cfg.logLevel {
		case "debug", "info", "warn", "error":
		default:
			return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
		}
	}

	return cfg, nil
}

// apply merges flag overrides into the file configuration.
func (c *cliConfig) apply(conf *config.Config) {
	if c.listenAddr != "" {
		conf.RTSP.Listen = c.listenAddr
	}
	if c.apiListen != "" {
		conf.API.Listen = c.apiListen
		conf.API.Enabled = true
	}
	if c.logLevel != "" {
		conf.Log.Level = c.logLevel
	}
}
