// Command facecue detects facial gestures in streamed landmark frames.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayusman/facecue/internal/app"
	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/logging"
	"github.com/ayusman/facecue/internal/session"
	"github.com/ayusman/facecue/internal/store"
)

// Version information (set at build time)
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "facecue",
		Short:         "facecue - facial gesture detection from landmark streams",
		Version:       version,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath(), "config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(flags),
		newReplayCmd(flags),
		newRunCmd(flags),
		newEventsCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// load reads .env files, the config file and builds the logger.
func (f *rootFlags) load() (*config.Config, zerolog.Logger, io.Closer, error) {
	if err := config.LoadDotEnv(".env", filepath.Join(config.DataDir(), ".env")); err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	log, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closer, nil
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	var printResults bool

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Run a recorded JSONL landmark stream through one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.Replay(cmd.Context(), in, printer(cmd.OutOrStdout(), log, printResults))
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printResults, "results", false, "print every per-frame result instead of only events")
	return cmd
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var printResults bool

	cmd := &cobra.Command{
		Use:   "run -- <extractor> [args...]",
		Short: "Run a landmark extractor process and detect gestures in its output",
		Long: `Starts the extractor and reads one JSON landmark frame per line from its
stdout until it exits or facecue is interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := landmark.NewCommandSource(ctx, args[0], args[1:]...)
			if err != nil {
				return err
			}

			sum, err := a.Run(ctx, "exec", src, printer(cmd.OutOrStdout(), log, printResults))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			printSummary(cmd.ErrOrStderr(), sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printResults, "results", false, "print every per-frame result instead of only events")
	return cmd
}

// printer writes events, or whole results, to w as JSON lines.
func printer(w io.Writer, log zerolog.Logger, results bool) session.ResultFunc {
	out := json.NewEncoder(w)
	return func(res session.Result, err error) {
		if err != nil {
			log.Debug().Err(err).Msg("frame rejected")
			return
		}
		if results {
			out.Encode(res)
			return
		}
		for _, rec := range res.Events {
			out.Encode(rec)
		}
	}
}

func printSummary(w io.Writer, sum session.Summary) {
	fmt.Fprintf(w,
		"session %s: %d frames, %d skipped, %d blinks, %d mouth opens, %d head turns, blink rate %d\n",
		sum.ID, sum.Frames, sum.Skipped, sum.Blinks, sum.MouthOpens, sum.HeadTurns, sum.BlinkRate)
}

func newEventsCmd(flags *rootFlags) *cobra.Command {
	var (
		kind      string
		sessionID string
		limit     int
		since     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded gesture events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			st, err := store.New(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.EventFilter{Type: kind, SessionID: sessionID, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since).UnixMilli()
			}

			events, err := st.Events().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "", "only this event type")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "only this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultEventLimit, "maximum events")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	return cmd
}

func printEvents(w io.Writer, events []*store.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tTYPE\tDETAIL")
	for _, e := range events {
		ts := time.UnixMilli(e.TimestampMS).Format("2006-01-02 15:04:05.000")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ts, e.SessionID, e.Type, detail(e))
	}
	return tw.Flush()
}

func detail(e *store.Event) string {
	switch {
	case e.EAR != nil:
		return fmt.Sprintf("ear=%.3f", *e.EAR)
	case e.MAR != nil:
		return fmt.Sprintf("mar=%.3f", *e.MAR)
	case e.YawDeg != nil:
		return fmt.Sprintf("yaw=%.1f° %s", *e.YawDeg, e.Direction)
	default:
		return ""
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
