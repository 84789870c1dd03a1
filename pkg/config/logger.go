package config

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// InitLogger configures the standard logrus logger. format is "json" or
// "text"; an optional file receives a copy of every line.
func InitLogger(level, format, file string) {
	if format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if file == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		log.Warnf("Failed to create log dir for %s: %v", file, err)
		return
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warnf("Failed to open log file %s: %v", file, err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
}
