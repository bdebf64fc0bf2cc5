package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("host", "0.0.0.0", "")
	fs.Int("port", 4423, "")
	fs.String("channel", "default", "")
	fs.String("shell", "", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags())
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 4423, cfg.Port)
	require.Equal(t, "default", cfg.Channel)
	require.Equal(t, "0.0.0.0:4423", cfg.Addr())
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("HOKAIDO_PORT", "9000")
	t.Setenv("HOKAIDO_CHANNEL", "room-42")

	cfg, err := Load(newFlags())
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "room-42", cfg.Channel)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("HOKAIDO_PORT", "9000")

	flags := newFlags()
	require.NoError(t, flags.Set("port", "1234"))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.Port)
}

func TestResolveShellFallsBackToShellEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	require.Equal(t, "/bin/zsh", resolveShell(""))
}

func TestResolveShellFallsBackToBash(t *testing.T) {
	t.Setenv("SHELL", "")
	require.Equal(t, "bash", resolveShell(""))
}

func TestResolveShellPrefersLayeredValue(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	require.Equal(t, "/bin/fish", resolveShell("/bin/fish"))
}
