package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/thiagokokada/gitk-compare/internal/buildinfo"
	"github.com/thiagokokada/gitk-compare/internal/config"
	"github.com/thiagokokada/gitk-compare/internal/git"
	"github.com/thiagokokada/gitk-compare/internal/recent"
	"github.com/thiagokokada/gitk-compare/internal/render"
	"github.com/thiagokokada/gitk-compare/internal/server"
)

const usage = `usage: gitk-compare <command> [flags] [args]

commands:
  serve                      run the HTTP API (default)
  refs <repo>                list branches and tags updated recently
  compare <repo> <ref> <ref> show the commits unique to each side
  show <repo> <hash>         show a commit and its changed files
  diff <repo> <hash> <path>  print the diff of one file in a commit
  version                    print version information
`

var errUsage = errors.New("invalid usage")

type env struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv})
}

func run(ctx context.Context, args []string, e env) error {
	name := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}
	var err error
	switch name {
	case "serve":
		err = runServe(ctx, args, e)
	case "refs":
		err = runRefs(ctx, args, e)
	case "compare":
		err = runCompare(ctx, args, e)
	case "show":
		err = runShow(ctx, args, e)
	case "diff":
		err = runDiff(ctx, args, e)
	case "version":
		err = runVersion(e)
	case "help":
		fmt.Fprint(e.stdout, usage)
		return nil
	default:
		fmt.Fprint(e.stderr, usage)
		return fmt.Errorf("unknown command %q: %w", name, errUsage)
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// commonFlags are accepted by every command that reads a repository.
type commonFlags struct {
	configPath string
	backend    string
	verbose    bool
}

func newFlagSet(name string, e env, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("gitk-compare "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&c.configPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&c.backend, "backend", "", "repository backend: cli or native")
	fs.BoolVar(&c.verbose, "verbose", false, "enable verbose logging")
	return fs
}

// load layers the flags that were set explicitly over the configuration
// file and installs the logger.
func (c *commonFlags) load(fs *flag.FlagSet, e env, override func(name string, cfg *config.Config)) (config.Config, error) {
	cfg, err := config.Load(c.configPath, e.getenv)
	if err != nil {
		return config.Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = c.backend
		case "verbose":
			if c.verbose {
				cfg.LogLevel = "debug"
			}
		default:
			if override != nil {
				override(f.Name, &cfg)
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.NewLogger(e.stderr)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func positional(fs *flag.FlagSet, e env, names ...string) ([]string, error) {
	if fs.NArg() != len(names) {
		fmt.Fprintf(e.stderr, "%s expects %d arguments: %v\n", fs.Name(), len(names), names)
		return nil, errUsage
	}
	return fs.Args(), nil
}

func openRepo(ctx context.Context, cfg config.Config, repoPath string) (*git.Service, error) {
	return git.Open(ctx, repoPath, cfg.GitOptions(nil))
}

func runServe(ctx context.Context, args []string, e env) error {
	var c commonFlags
	fs := newFlagSet("serve", e, &c)
	addr := fs.String("addr", "", "listen address (host:port)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := positional(fs, e); err != nil {
		return err
	}
	cfg, err := c.load(fs, e, func(name string, cfg *config.Config) {
		if name == "addr" {
			cfg.Addr = *addr
		}
	})
	if err != nil {
		return err
	}

	store, err := recent.Open(cfg.RecentFile, cfg.RecentLimit)
	if err != nil {
		return err
	}
	if err := store.Watch(func(paths []string) {
		slog.Debug("recent list reloaded", slog.Int("count", len(paths)))
	}); err != nil {
		slog.Warn("recent list watcher disabled", slog.Any("error", err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("recent list watcher close", slog.Any("error", err))
		}
	}()

	cache := cfg.NewStatsCache()
	gitOpts := cfg.GitOptions(cache)
	srv, err := server.New(server.Options{
		Open: func(ctx context.Context, repoPath string) (server.Repository, error) {
			return git.Open(ctx, repoPath, gitOpts)
		},
		Recent:     store,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}
	slog.Info("starting gitk-compare",
		slog.String("version", buildinfo.VersionWithTags()),
		slog.String("backend", cfg.Backend),
		slog.String("recent_file", cfg.RecentFile),
	)
	return srv.ListenAndServe(ctx, cfg.Addr)
}

func runRefs(ctx context.Context, args []string, e env) error {
	var c commonFlags
	fs := newFlagSet("refs", e, &c)
	window := fs.Duration("window", 0, "only list references updated within this window (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, e, "repo")
	if err != nil {
		return err
	}
	cfg, err := c.load(fs, e, func(name string, cfg *config.Config) {
		if name == "window" {
			cfg.RecencyWindow = config.Duration(*window)
		}
	})
	if err != nil {
		return err
	}
	svc, err := openRepo(ctx, cfg, pos[0])
	if err != nil {
		return err
	}
	names, err := svc.ReferenceNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(e.stdout, name)
	}
	return nil
}

func runCompare(ctx context.Context, args []string, e env) error {
	var c commonFlags
	fs := newFlagSet("compare", e, &c)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, e, "repo", "ref1", "ref2")
	if err != nil {
		return err
	}
	cfg, err := c.load(fs, e, nil)
	if err != nil {
		return err
	}
	svc, err := openRepo(ctx, cfg, pos[0])
	if err != nil {
		return err
	}
	res, err := svc.Compare(ctx, pos[1], pos[2])
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(e.stdout, res)
	}
	fmt.Fprintf(e.stdout, "common parent: %s\n", res.CommonParent)
	writeCommitColumn(e.stdout, pos[1], res.Left)
	writeCommitColumn(e.stdout, pos[2], res.Right)
	return nil
}

func writeCommitColumn(w io.Writer, ref string, commits []git.CommitSummary) {
	fmt.Fprintf(w, "\n%s (%d commits)\n", ref, len(commits))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commits {
		fmt.Fprintf(tw, "%s\t+%d\t-%d\t%s\t%s\t%s\n",
			shortHash(c.Hash),
			c.Stats.Additions,
			c.Stats.Deletions,
			c.Date.Format(time.DateOnly),
			c.Author,
			c.Message,
		)
	}
	tw.Flush()
}

func runShow(ctx context.Context, args []string, e env) error {
	var c commonFlags
	fs := newFlagSet("show", e, &c)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, e, "repo", "hash")
	if err != nil {
		return err
	}
	cfg, err := c.load(fs, e, nil)
	if err != nil {
		return err
	}
	svc, err := openRepo(ctx, cfg, pos[0])
	if err != nil {
		return err
	}
	detail, err := svc.CommitDetail(ctx, pos[1])
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(e.stdout, detail)
	}
	fmt.Fprintf(e.stdout, "commit %s\nAuthor: %s <%s>\nDate:   %s\n\n%s\n",
		detail.Hash, detail.Author, detail.AuthorEmail, detail.Date.Format(time.RFC3339), detail.Message)
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, f := range detail.Files {
		path := f.Path
		if f.OldPath != "" {
			path = f.OldPath + " => " + f.Path
		}
		fmt.Fprintf(tw, "%s\t+%d\t-%d\t%s\n", f.Status, f.Additions, f.Deletions, path)
	}
	return tw.Flush()
}

func runDiff(ctx context.Context, args []string, e env) error {
	var c commonFlags
	fs := newFlagSet("diff", e, &c)
	mode := fs.String("mode", render.ThemeAuto.String(), "color mode: auto, light, or dark")
	noSyntax := fs.Bool("nosyntax", false, "disable syntax highlighting")
	noColor := fs.Bool("nocolor", false, "print the diff without colors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, e, "repo", "hash", "path")
	if err != nil {
		return err
	}
	cfg, err := c.load(fs, e, nil)
	if err != nil {
		return err
	}
	svc, err := openRepo(ctx, cfg, pos[0])
	if err != nil {
		return err
	}
	diff, err := svc.FileDiff(ctx, pos[1], pos[2])
	if err != nil {
		return err
	}
	color := !*noColor
	if f, ok := e.stdout.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		color = false
	}
	return render.Diff(e.stdout, diff.Diff, render.Options{
		Palette: render.PaletteFor(render.ThemePreferenceFromString(*mode)),
		Syntax:  !*noSyntax,
		Color:   color,
	})
}

func runVersion(e env) error {
	fmt.Fprintf(e.stdout, "gitk-compare %s\n", buildinfo.VersionWithTags())
	current, minimum, err := git.GitVersion()
	if err != nil {
		fmt.Fprintf(e.stdout, "git: unavailable (%v), requires >= %s\n", err, minimum)
		return nil
	}
	fmt.Fprintf(e.stdout, "git: %s (requires >= %s)\n", current, minimum)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
