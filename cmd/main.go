package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/brettbedarf/entryfs/adapters"
	"github.com/brettbedarf/entryfs/config"
	"github.com/brettbedarf/entryfs/harness"
	"github.com/brettbedarf/entryfs/internal/journal"
	"github.com/brettbedarf/entryfs/internal/util"
)

// CLI is the command line parsed by kong
type CLI struct {
	Verbose int `short:"v" default:"0" help:"Log verbosity between 1 (error) and 5 (trace). Default is the config value (info)."`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run the storage smoke test"`
	History HistoryCmd `cmd:"" help:"Show recent runs from the journal"`
}

type RunCmd struct {
	Config      string `short:"c" type:"existingfile" help:"YAML or JSON config file"`
	Root        string `short:"r" help:"Root URL of the storage under test, i.e. mem://name/ or file:///dir/"`
	DownloadURL string `name:"download-url" help:"Remote file fetched by the download side chain"`
	NoDownload  bool   `name:"no-download" help:"Skip the download side chain"`
	MoveSource  string `name:"move-source" help:"File moved after the copy: original or copy"`
	Journal     string `short:"j" help:"SQLite file the run is recorded in"`
	Keep        bool   `short:"k" help:"Keep the test directory instead of removing it"`
}

type HistoryCmd struct {
	Journal string `short:"j" required:"" help:"SQLite file runs were recorded in"`
	Limit   int    `short:"n" default:"10" help:"Number of runs to show"`
}

// App carries process state into command handlers
type App struct {
	ctx     context.Context
	out     io.Writer
	errOut  io.Writer
	verbose int
}

var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and executes the selected command. Returns the exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("entryfs"),
		kong.Description("Smoke test for asynchronous entry-based storage."),
		kong.Writers(out, errOut),
	)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	verbose := cli.Verbose
	if verbose == 0 {
		verbose = config.InfoVerbose
	}
	util.InitializeLoggerTo(errOut, util.LevelFromVerbose(verbose))

	app := &App{ctx: ctx, out: out, errOut: errOut, verbose: cli.Verbose}
	switch kctx.Command() {
	case "run":
		err = cli.Run.Run(app)
	case "history":
		err = cli.History.Run(app)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(errOut, "error:", err)
		}
		return 1
	}
	return 0
}

// Run executes one smoke test and prints its summary
func (c *RunCmd) Run(app *App) error {
	cfg, err := c.config(app.verbose)
	if err != nil {
		return err
	}
	util.InitializeLoggerTo(app.errOut, cfg.LogLvl)
	logger := util.GetLogger("main")

	registry := adapters.NewRegistry()
	adapters.RegisterBuiltins(registry)
	defer registry.Close()

	tr := adapters.NewHTTPTransfer(cfg.DownloadTimeoutDuration(),
		adapters.WithRetries(cfg.DownloadRetries),
		adapters.WithHeader("User-Agent", "entryfs"))

	var opts []harness.Option
	if cfg.JournalPath != "" {
		j, err := journal.Open(app.ctx, cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, harness.WithJournal(j))
	}

	logger.Info().Str("root", cfg.RootURL).Str("download", cfg.DownloadURL).Msg("Starting smoke test")
	rep, err := harness.NewSession(cfg, registry, tr, opts...).Run(app.ctx)
	if werr := rep.WriteSummary(app.out); werr != nil {
		logger.Error().Err(werr).Msg("Failed to write summary")
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errRunFailed, err)
	}
	return nil
}

// config loads the config file, if any, and applies flag overrides
func (c *RunCmd) config(verbose int) (*config.Config, error) {
	override := &config.ConfigOverride{}
	if c.Config != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(c.Config); err != nil {
			return nil, err
		}
	}
	if verbose != 0 {
		override.LogLvl = &verbose
	}
	if c.Root != "" {
		override.RootURL = &c.Root
	}
	if c.DownloadURL != "" {
		override.DownloadURL = &c.DownloadURL
	}
	if c.NoDownload {
		override.DownloadURL = util.Pointer("")
	}
	if c.MoveSource != "" {
		override.MoveSource = &c.MoveSource
	}
	if c.Journal != "" {
		override.JournalPath = &c.Journal
	}
	if c.Keep {
		override.Cleanup = util.Pointer(false)
	}

	cfg := config.NewConfig(override)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Run prints the most recent runs from the journal
func (c *HistoryCmd) Run(app *App) error {
	j, err := journal.Open(app.ctx, c.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.Recent(app.ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(app.out, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		status := "PASS"
		if !r.OK {
			status = "FAIL"
		}
		failed := 0
		for _, s := range r.Steps {
			if !s.OK {
				failed++
			}
		}
		fmt.Fprintf(app.out, "%s  %s  %s  %-24s %3d steps %2d failed  %s\n",
			r.ID, status, humanize.Time(r.StartedAt), r.RootURL, len(r.Steps), failed, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(app.out, "    %s\n", r.Error)
		}
	}
	return nil
}
