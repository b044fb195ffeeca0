package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/facecue/internal/app"
	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/tray"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		withTray bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the landmark websocket, event API and dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			cfg.Server.StaticDir = findWebDir(cfg.Server.StaticDir)
			if cfg.Server.StaticDir != "" {
				log.Info().Str("dir", cfg.Server.StaticDir).Msg("serving static files")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch {
				if err := a.Watch(flags.configPath); err != nil {
					log.Warn().Err(err).Msg("config watch unavailable")
				}
			}

			if !withTray {
				return a.Serve(ctx)
			}

			t := tray.New()
			t.OnToggle(a.SetEnabled)
			t.OnDashboard(func() {
				if err := openBrowser(dashboardURL(cfg.Server.Addr)); err != nil {
					log.Warn().Err(err).Msg("failed to open dashboard")
				}
			})
			t.OnQuit(stop)
			a.OnEvent("tray", func(ev gesture.Event) { t.Observe(ev) })

			errCh := make(chan error, 1)
			go func() {
				errCh <- a.Serve(ctx)
				t.Quit()
			}()

			// systray must own the main goroutine on some platforms.
			t.Run()
			stop()
			return <-errCh
		},
	}
	cmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray icon")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload detection settings when the config file changes")
	return cmd
}

// findWebDir resolves the static directory. A relative dir is looked up from
// the working directory upwards and then under the data directory. Returns
// "" when nothing is found.
func findWebDir(dir string) string {
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		if isDir(dir) {
			return dir
		}
		return ""
	}

	for _, p := range []string{dir, filepath.Join("..", dir), filepath.Join("..", "..", dir)} {
		if isDir(p) {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	if p := filepath.Join(config.DataDir(), dir); isDir(p) {
		return p
	}
	return ""
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return fmt.Sprintf("http://%s/", addr)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
