package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/CTAG07/nextword/internal/config"
	"github.com/CTAG07/nextword/internal/logging"
	"github.com/CTAG07/nextword/pkg/bigram"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// demoCorpus is the corpus the demo command builds its model from.
const demoCorpus = "The cat sat on the mat. The dog chased the cat. The cat ran up the tree."

// app carries the state shared by every command once the global flags have
// been applied.
type app struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	a := &app{out: out, errOut: errOut}

	return &cli.App{
		Name:      "nextword",
		Usage:     "next-word prediction from bigram frequencies",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the JSON config file",
				EnvVars: []string{config.EnvConfigPath},
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{Name: "db", Usage: "database path, overrides database_path"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "format", Usage: "output format: table, yaml or json"},
		},
		Before:   a.setup,
		Action:   a.demo,
		Commands: a.commands(),
	}
}

// setup loads the config file, applies environment overrides and then the
// global flags, and builds the logger.
func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err = config.ApplyEnv(cfg); err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("format") {
		cfg.OutputFormat = c.String("format")
	}

	switch cfg.OutputFormat {
	case formatTable, formatYAML, formatJSON:
	case "":
		cfg.OutputFormat = formatTable
	default:
		return fmt.Errorf("unknown output format %q", cfg.OutputFormat)
	}

	a.config = cfg
	a.logger = logging.New(a.errOut, cfg.LogLevel, cfg.LogFormat)
	return nil
}

// openStore opens the configured database and prepares a Store over it. The
// returned function closes both.
func (a *app) openStore() (*bigram.Store, func(), error) {
	if dir := databaseDir(a.config.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := initDB(a.config.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = bigram.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to set up schema: %w", err)
	}

	store, err := bigram.NewStore(db, nil)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	store.SetLogger(a.logger)

	return store, func() {
		store.Close()
		closeDB(a.logger, db)
	}, nil
}

func closeDB(logger *slog.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
}

// databaseDir returns the directory a file DSN lives in, or "" for in-memory
// databases and bare file names.
func databaseDir(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// corpusByName looks up a stored corpus, turning a missing row into a
// readable error.
func corpusByName(ctx context.Context, store *bigram.Store, name string) (bigram.CorpusInfo, error) {
	info, err := store.GetCorpusInfo(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return info, fmt.Errorf("corpus %q does not exist", name)
		}
		return info, fmt.Errorf("failed to look up corpus %q: %w", name, err)
	}
	return info, nil
}
