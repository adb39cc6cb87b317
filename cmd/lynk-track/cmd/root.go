package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/config"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/session"
)

var (
	configPath  string
	sessionFile string
	pageURL     string
	userAgent   string
)

var rootCmd = &cobra.Command{
	Use:   "lynk-track",
	Short: "Send Lynk tracking events and bookings from the command line",
	Long: `lynk-track drives the Lynk embed SDK outside a browser.

It sends tracking events through the pixel, lists an academy's batches and
appointment slots, and submits bookings. Cookies are kept in a session file
between runs so consecutive commands share one session id.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (LYNK_* variables override it)")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "cookie jar file (default $XDG_CONFIG_HOME/lynk/cookies.json)")
	rootCmd.PersistentFlags().StringVar(&pageURL, "url", "https://localhost/", "page URL reported with events")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "lynk-track/1.0", "user agent reported with events")
}

// env is what every subcommand needs.
type env struct {
	cfg   config.Config
	clock clock.Clock
	jar   *session.MemoryJar
	page  page.Provider
	path  string
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "lynk-track"})

	path, err := sessionPath(cfg.SessionFile)
	if err != nil {
		return nil, err
	}
	clk := clock.Real{}
	jar, err := session.LoadMemoryJar(path, clk)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		clock: clk,
		jar:   jar,
		page:  page.Static{URL: pageURL, UserAgent: userAgent},
		path:  path,
	}, nil
}

// sessionPath resolves the cookie jar file: the --session-file flag, then
// the configured path, then the user config directory.
func sessionPath(configured string) (string, error) {
	if sessionFile != "" {
		return sessionFile, nil
	}
	if configured != "" {
		return configured, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "lynk", "cookies.json"), nil
}

func saveJar(jar *session.MemoryJar, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return jar.Save(path)
}

func (e *env) saveSession() error {
	return saveJar(e.jar, e.path)
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
