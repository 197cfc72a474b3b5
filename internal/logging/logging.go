package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	Level  string // trace, debug, info (default), warn, error
	Format string // text (default) or json
	Out    io.Writer
}

// New builds a logger writing to stderr unless Out is set.
func New(cfg Config) (*log.Logger, error) {
	l := log.New()
	l.SetOutput(os.Stderr)
	if cfg.Out != nil {
		l.SetOutput(cfg.Out)
	}

	level := log.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		lv, err := log.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lv
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format: %q", cfg.Format)
	}
	return l, nil
}
