// Package config layers CLI flags, environment variables, and defaults
// into the values each role needs: host, port, channel, and (for the
// broadcaster) the shell to spawn.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the resolved settings for one invocation.
type Config struct {
	Host    string
	Port    int
	Channel string
	Shell   string
}

// Addr formats the host:port pair used for both listening and dialing.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load resolves a Config from flags, in precedence order flag > env >
// default. flags should be the invoking cobra command's own flag set, so
// that a flag left at its zero value still falls through to the
// environment rather than shadowing it.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 4423)
	v.SetDefault("channel", "default")

	if err := v.BindEnv("host", "HOKAIDO_HOST"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("port", "HOKAIDO_PORT"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("channel", "HOKAIDO_CHANNEL"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("shell", "HOKAIDO_SHELL"); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, err
	}

	return Config{
		Host:    v.GetString("host"),
		Port:    v.GetInt("port"),
		Channel: v.GetString("channel"),
		Shell:   resolveShell(v.GetString("shell")),
	}, nil
}

// resolveShell applies the broadcaster's shell-discovery fallback: the
// layered HOKAIDO_SHELL/--shell value if set, else the bare $SHELL
// environment variable, else bash.
func resolveShell(layered string) string {
	if layered != "" {
		return layered
	}
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "bash"
}
