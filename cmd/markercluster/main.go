package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1F47E/geo-marker-cluster/internal/config"
	"github.com/1F47E/geo-marker-cluster/internal/logging"
	"github.com/1F47E/geo-marker-cluster/internal/observability"
)

var (
	v          = config.New()
	cfgFile    string
	cfg        *config.Config
	logger     *slog.Logger
	shutdownFn func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "markercluster",
	Short: "Greedy marker clustering for web map viewports",
	Long: `Computes the visible box of a map window, drops the points outside it and
merges markers that would overlap on screen into a single marker.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.ShutdownWithTimeout(context.Background(), shutdownFn, logger)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default ./markercluster.yaml)")
	flags.String("strategy", "linear", "Cluster strategy: linear, rtree or grid")
	flags.Int("width", 500, "Map window width in pixels")
	flags.Int("height", 400, "Map window height in pixels")
	flags.Float64("marker-diameter", 40, "Marker diameter in pixels")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("tracing", false, "Export pipeline spans to stdout")

	bind(v, map[string]string{
		"cluster.strategy":         "strategy",
		"viewport.width":           "width",
		"viewport.height":          "height",
		"viewport.marker_diameter": "marker-diameter",
		"log.level":                "log-level",
		"log.format":               "log-format",
		"tracing.enabled":          "tracing",
	}, rootCmd)

	rootCmd.AddCommand(viewboxCmd, clusterCmd, serveCmd, viewCmd, loadCmd)
}

// bind maps viper keys onto persistent or local flags of cmd
func bind(v *viper.Viper, keys map[string]string, cmd *cobra.Command) {
	for key, name := range keys {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			f = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = logging.Setup(cfg.Log.Level, cfg.Log.Format)

	shutdownFn, err = observability.InitTracing(cmd.Context(), cfg.TracingConfig(), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}
