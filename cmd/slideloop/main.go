package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nvall/slideloop/internal/config"
	"github.com/nvall/slideloop/internal/content"
	"github.com/nvall/slideloop/internal/display"
	"github.com/nvall/slideloop/internal/engine"
	"github.com/nvall/slideloop/internal/ffmpeg"
	"github.com/nvall/slideloop/internal/logging"
	"github.com/nvall/slideloop/internal/report"
	"github.com/nvall/slideloop/internal/watch"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slideloop",
	Short: "slideloop - looping slideshow player for kiosk displays",
	Long:  "A slideshow engine that loops images and videos full screen with animated transitions, built for unattended Raspberry Pi signage.",
	Args:  cobra.NoArgs,
	RunE:  runPlayback,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx := config.WithSettings(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play the slideshow until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runPlayback,
}

func runPlayback(cmd *cobra.Command, args []string) error {
	cfg := config.FromContext(cmd.Context())

	disp, err := display.Open(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer disp.Close()

	reporter := report.NewReporter(cfg.ErrorLog, log.Logger)
	defer reporter.Close()

	executor, err := ffmpeg.New(log.Logger, 0)
	if err != nil {
		log.Warn().Err(err).Msg("ffmpeg unavailable, video slides will show the error card")
		executor = nil
	}

	eng := engine.New(engine.Options{
		Settings: cfg,
		Display:  disp,
		Source:   content.NewSource(cfg.SlideDir, cfg.SlideDuration.Duration(), log.Logger),
		Reporter: reporter,
		Logger:   log.Logger,
		Executor: executor,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	watcher := watch.New(cfg.SlideDir, cfg.ReloadDebounce.Duration(), log.Logger)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-watcher.Signals():
				eng.Signal(engine.SignalReload)
			}
		}
	})
	g.Go(func() error {
		// When the engine stops, for any reason, take the rest down.
		defer stop()
		return eng.Run(gctx)
	})

	return g.Wait()
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the slide directory and print the playlist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		source := content.NewSource(cfg.SlideDir, cfg.SlideDuration.Duration(), log.Logger)
		playlist, aux, err := source.Scan()
		if err != nil {
			return err
		}

		fmt.Printf("playlist %s (%d items)\n", playlist.Revision, playlist.Len())
		for _, item := range playlist.Items {
			if item.Kind == content.KindImage {
				fmt.Printf("%3d  %-5s  %-8s  %s\n", item.Index, item.Kind, item.Duration, item.Path)
			} else {
				fmt.Printf("%3d  %-5s  %-8s  %s\n", item.Index, item.Kind, "stream", item.Path)
			}
		}

		fmt.Printf("footer: %d lines\n", len(aux.FooterLines))
		if aux.QRPayload != "" {
			fmt.Printf("qr: %s\n", aux.QRPayload)
		} else {
			fmt.Println("qr: none")
		}

		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}

		fmt.Println("configuration valid")
		fmt.Print(string(out))

		return nil
	},
}
