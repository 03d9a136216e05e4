package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courseforge/courseforge/internal/assets"
	"github.com/courseforge/courseforge/internal/builder"
	"github.com/courseforge/courseforge/internal/config"
	"github.com/courseforge/courseforge/internal/importer"
	"github.com/courseforge/courseforge/internal/job"
	"github.com/courseforge/courseforge/internal/metrics"
	"github.com/courseforge/courseforge/internal/plugin"
	"github.com/courseforge/courseforge/internal/records"
	"github.com/courseforge/courseforge/internal/schema"

	"github.com/courseforge/courseforge/internal/content"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"courseforge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Course  string `arg:"" help:"Course id to build"`
		Action  string `short:"a" enum:"preview,publish,export" default:"publish" help:"Build action"`
		Creator string `help:"Requesting user id" default:"cli"`
	} `cmd:"" help:"Build a stored course into a package"`

	Import struct {
		Archive       string `arg:"" type:"existingfile" help:"Package zip to import"`
		DryRun        bool   `help:"Resolve plugins only, change nothing"`
		SkipContent   bool   `help:"Do not import course content"`
		SkipPlugins   bool   `help:"Do not install missing plugins"`
		UpdatePlugins bool   `help:"Allow updating installed plugins"`
		Tags          []string `help:"Tags merged into every imported asset"`
	} `cmd:"" help:"Import a course package into the content store"`

	Sweep struct{} `cmd:"" help:"Remove expired build records and their outputs"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := run(kctx.Command(), cfg); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func run(command string, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := content.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()
	assetStore, err := assets.NewFSStore(cfg.AssetDir(), filepath.Join(cfg.DataDir, "assets.db"))
	if err != nil {
		return err
	}
	defer assetStore.Close()
	registry, err := plugin.NewLocalRegistry(filepath.Join(cfg.DataDir, "plugins.db"), cfg.PluginSourceDir)
	if err != nil {
		return err
	}
	defer registry.Close()
	recordStore, err := records.NewStore(filepath.Join(cfg.DataDir, "records.db"))
	if err != nil {
		return err
	}
	defer recordStore.Close()

	schemas := schema.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	ctx := context.Background()

	switch command {
	case "build <course>":
		b := builder.New(store, schemas, assetStore, registry, recordStore, cfg, recorder)
		j := job.New(job.Action(CLI.Build.Action), CLI.Build.Course, CLI.Build.Creator, job.Settings{})
		res, err := b.Run(ctx, j)
		if err != nil {
			return err
		}
		printReport(res.Info, res.Warn)
		fmt.Printf("output: %s\n", res.Location)
		return nil
	case "import <archive>":
		im := importer.New(store, schemas, assetStore, registry, cfg, recorder)
		j := job.New(job.ActionImport, "", "cli", job.Settings{
			DryRun:        CLI.Import.DryRun,
			ImportContent: !CLI.Import.SkipContent,
			ImportPlugins: !CLI.Import.SkipPlugins,
			UpdatePlugins: CLI.Import.UpdatePlugins,
			GlobalTags:    CLI.Import.Tags,
		})
		res, err := im.Run(ctx, j, CLI.Import.Archive)
		if err != nil {
			return err
		}
		printReport(res.Info, res.Warn)
		if res.CourseID != "" {
			fmt.Printf("course: %s\n", res.CourseID)
		}
		return nil
	case "sweep":
		sweeper, err := records.NewSweeper(recordStore)
		if err != nil {
			return err
		}
		removed, err := sweeper.SweepOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired build record(s)\n", removed)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printReport(info, warn []string) {
	for _, line := range info {
		fmt.Printf("  info: %s\n", line)
	}
	for _, line := range warn {
		fmt.Printf("  warn: %s\n", line)
	}
}
