// Package logging provides leveled log functions for growcutseg.
// Messages go to the standard log package, or to a rotating log file once
// SetLogger has been called with a file name.
package logging

import (
	"fmt"
	"log"
	"sync"

	"github.com/natefinch/lumberjack"
)

// ModeFlag is the minimum severity written to the log
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

// ParseMode maps a config string to a ModeFlag. Unknown strings map to InfoMode.
func ParseMode(s string) ModeFlag {
	switch s {
	case "debug":
		return DebugMode
	case "warning", "warn":
		return WarningMode
	case "error":
		return ErrorMode
	case "silent", "off":
		return SilentMode
	default:
		return InfoMode
	}
}

// Config describes an optional rotating log file
type Config struct {
	Logfile string `yaml:"file" toml:"file"`
	MaxSize int    `yaml:"maxSize" toml:"max_log_size"` // megabytes
	MaxAge  int    `yaml:"maxAge" toml:"max_log_age"`   // days
	Level   string `yaml:"level" toml:"level"`
}

var (
	mu     sync.Mutex
	mode   = InfoMode
	rotate *lumberjack.Logger
)

// SetLogMode sets the severity required for a message to be printed
func SetLogMode(m ModeFlag) {
	mu.Lock()
	mode = m
	mu.Unlock()
}

// SetLogger applies the level and, if a log file is named, routes the
// standard logger into a rotating file.
func (c *Config) SetLogger() {
	if c == nil {
		return
	}
	if c.Level != "" {
		SetLogMode(ParseMode(c.Level))
	}
	if c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	mu.Lock()
	rotate = l
	mu.Unlock()
	log.SetOutput(l)
}

// Shutdown closes the log file if one is open
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotate != nil {
		rotate.Close()
		rotate = nil
	}
}

func enabled(m ModeFlag) bool {
	mu.Lock()
	defer mu.Unlock()
	return mode <= m
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		log.Printf(" DEBUG "+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		log.Printf(" INFO "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		log.Printf(" WARNING "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		log.Printf(" ERROR "+format, args...)
	}
}
