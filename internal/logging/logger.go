// Package logging provides the structured, per-component loggers shared by
// the server, broadcaster, and watcher roles.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

func init() {
	base, _ = zap.NewProduction()
}

// Configure selects the base zap configuration for the process. verbose
// switches to zap's development config (console encoding, debug level);
// otherwise production config (JSON, info level) is used. Called once from
// the command entry point before any subsystem starts logging.
func Configure(verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	var l *zap.Logger
	var err error
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return
	}
	base = l
}

// WithComponent returns a sugared logger tagging every line with
// component=name, so concurrent subsystems (registry, channel, broadcaster,
// watcher...) stay distinguishable in the combined stream.
func WithComponent(name string) *zap.SugaredLogger {
	mu.Lock()
	l := base
	mu.Unlock()
	return l.Sugar().With("component", name)
}

// Sync flushes any buffered log entries. Call once before process exit.
func Sync() {
	mu.Lock()
	l := base
	mu.Unlock()
	_ = l.Sync()
}
