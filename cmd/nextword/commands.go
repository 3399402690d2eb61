package main

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/urfave/cli/v2"

	"github.com/CTAG07/nextword/internal/ingest"
	"github.com/CTAG07/nextword/pkg/bigram"
)

func (a *app) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "demo",
			Usage:  "show the next-word distribution of a built-in three sentence corpus",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "word", Aliases: []string{"w"}, Value: "the"}},
			Action: a.demo,
		},
		{
			Name:   "query",
			Usage:  "show the next-word distribution of a word",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "word", Aliases: []string{"w"}, Required: true}, fileFlag(), corpusFlag(false)},
			Action: a.query,
		},
		{
			Name:      "train",
			Usage:     "train a stored corpus from text or HTML files",
			ArgsUsage: "FILE...",
			Flags:     []cli.Flag{corpusFlag(true)},
			Action:    a.train,
		},
		{
			Name:  "generate",
			Usage: "generate text by following bigrams from a seed word",
			Flags: []cli.Flag{
				corpusFlag(true),
				&cli.StringFlag{Name: "seed", Aliases: []string{"s"}, Required: true},
				&cli.IntFlag{Name: "max-length", Usage: "maximum number of tokens, seed included"},
				&cli.Float64Flag{Name: "temperature", Usage: "0 always picks the most frequent successor"},
				&cli.IntFlag{Name: "top-k", Usage: "sample only among the k most frequent successors"},
			},
			Action: a.generate,
		},
		{
			Name:   "stats",
			Usage:  "show store statistics",
			Action: a.stats,
		},
		{
			Name:  "prune",
			Usage: "remove rare bigrams from a corpus, or unused vocabulary",
			Flags: []cli.Flag{
				corpusFlag(false),
				&cli.IntFlag{Name: "min-freq", Usage: "remove bigrams seen this many times or fewer", Value: 1},
				&cli.BoolFlag{Name: "vocabulary", Usage: "remove vocabulary no corpus uses"},
			},
			Action: a.prune,
		},
		{
			Name:   "export",
			Usage:  "export a corpus as JSON",
			Flags:  []cli.Flag{corpusFlag(true), &cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, stdout when empty"}},
			Action: a.export,
		},
		{
			Name:      "import",
			Usage:     "import a corpus exported as JSON, merging into an existing one",
			ArgsUsage: "FILE",
			Action:    a.importCorpus,
		},
		{
			Name:   "corpora",
			Usage:  "list stored corpora",
			Action: a.corpora,
		},
		{
			Name:   "remove",
			Usage:  "delete a stored corpus",
			Flags:  []cli.Flag{corpusFlag(true)},
			Action: a.remove,
		},
		{
			Name:   "serve",
			Usage:  "serve the HTTP API",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "addr", Usage: "listen address, overrides api_addr"}},
			Action: a.serve,
		},
		{
			Name:   "explore",
			Usage:  "explore next words interactively",
			Flags:  []cli.Flag{fileFlag(), corpusFlag(false)},
			Action: a.explore,
		},
	}
}

func corpusFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{Name: "corpus", Aliases: []string{"c"}, Usage: "name of a stored corpus", Required: required}
}

func fileFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "text or HTML file to build a model from"}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (a *app) demo(c *cli.Context) error {
	word := "the"
	if c.IsSet("word") {
		word = strings.ToLower(c.String("word"))
	}
	m := bigram.NewModel(demoCorpus)
	return renderDistribution(a.out, a.config.OutputFormat, newDistribution(word, m.Successors(word)))
}

func (a *app) query(c *cli.Context) error {
	word := strings.ToLower(c.String("word"))

	switch {
	case c.IsSet("file") && c.IsSet("corpus"):
		return errors.New("use either --file or --corpus, not both")
	case c.IsSet("file"):
		text, err := ingest.ReadFile(c.String("file"))
		if err != nil {
			return err
		}
		m := bigram.NewModel(text)
		return renderDistribution(a.out, a.config.OutputFormat, newDistribution(word, m.Successors(word)))
	case c.IsSet("corpus"):
		store, done, err := a.openStore()
		if err != nil {
			return err
		}
		defer done()

		info, err := corpusByName(c.Context, store, c.String("corpus"))
		if err != nil {
			return err
		}
		successors, _, err := store.GetSuccessors(c.Context, info, word)
		if err != nil {
			return err
		}
		return renderDistribution(a.out, a.config.OutputFormat, newDistribution(word, successors))
	default:
		return errors.New("one of --file or --corpus is required")
	}
}

func (a *app) train(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file to train from is required")
	}

	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	info, err := store.EnsureCorpus(c.Context, c.String("corpus"))
	if err != nil {
		return err
	}

	for _, path := range c.Args().Slice() {
		rc, err := ingest.Open(path)
		if err != nil {
			return err
		}
		err = store.Train(c.Context, info, rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("failed to train on %s: %w", path, err)
		}
		a.logger.Info("Trained on file", "corpus", info.Name, "file", path)
	}

	stats, err := store.GetCorpusStats(c.Context, info)
	if err != nil {
		return err
	}
	return writeNote(a.out, "corpus %q: %d tokens, %d documents, %d unique bigrams",
		info.Name, stats.Tokens, stats.Documents, stats.UniqueBigrams)
}

func (a *app) generate(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	info, err := corpusByName(c.Context, store, c.String("corpus"))
	if err != nil {
		return err
	}

	gen := a.config.Generate
	maxLength, temperature, topK := gen.MaxLength, gen.Temperature, gen.TopK
	if c.IsSet("max-length") {
		maxLength = c.Int("max-length")
	}
	if c.IsSet("temperature") {
		temperature = c.Float64("temperature")
	}
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}

	seed := strings.ToLower(c.String("seed"))
	tokens, err := store.Generate(c.Context, info, seed,
		bigram.WithMaxLength(maxLength),
		bigram.WithTemperature(temperature),
		bigram.WithTopK(topK),
	)
	if err != nil {
		return err
	}
	if tokens == nil {
		tokens = []string{}
	}
	return renderGenerated(a.out, a.config.OutputFormat, generated{
		Seed:   seed,
		Tokens: tokens,
		Text:   strings.Join(tokens, " "),
	})
}

func (a *app) stats(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	stats, err := store.GetStats(c.Context)
	if err != nil {
		return err
	}
	return renderStats(a.out, a.config.OutputFormat, stats)
}

func (a *app) prune(c *cli.Context) error {
	if c.Bool("vocabulary") == c.IsSet("corpus") {
		return errors.New("use exactly one of --corpus or --vocabulary")
	}

	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	if c.Bool("vocabulary") {
		removed, err := store.VocabularyPrune(c.Context)
		if err != nil {
			return err
		}
		return writeNote(a.out, "removed %d vocabulary entries", removed)
	}

	info, err := corpusByName(c.Context, store, c.String("corpus"))
	if err != nil {
		return err
	}
	removed, err := store.PruneCorpus(c.Context, info, c.Int("min-freq"))
	if err != nil {
		return err
	}
	return writeNote(a.out, "removed %d bigrams from %q", removed, info.Name)
}

func (a *app) export(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	info, err := corpusByName(c.Context, store, c.String("corpus"))
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		return store.ExportCorpus(c.Context, info, a.out)
	}

	var buf bytes.Buffer
	if err = store.ExportCorpus(c.Context, info, &buf); err != nil {
		return err
	}
	if err = atomic.WriteFile(out, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	a.logger.Info("Corpus exported", "corpus", info.Name, "file", out)
	return nil
}

func (a *app) importCorpus(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one file to import is required")
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	info, err := store.ImportCorpus(c.Context, f)
	if err != nil {
		return err
	}
	return writeNote(a.out, "imported corpus %q", info.Name)
}

func (a *app) corpora(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	infos, err := store.GetCorpusInfos(c.Context)
	if err != nil {
		return err
	}
	return renderCorpora(a.out, a.config.OutputFormat, infos)
}

func (a *app) remove(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	info, err := corpusByName(c.Context, store, c.String("corpus"))
	if err != nil {
		return err
	}
	if err = store.RemoveCorpus(c.Context, info); err != nil {
		return err
	}
	return writeNote(a.out, "removed corpus %q", info.Name)
}
