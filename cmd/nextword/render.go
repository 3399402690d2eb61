package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/nextword/pkg/bigram"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// distribution is the rendered answer to a next-word query.
type distribution struct {
	Word       string             `json:"word" yaml:"word"`
	Total      int                `json:"total" yaml:"total"`
	Successors []bigram.Successor `json:"successors" yaml:"successors"`
}

func newDistribution(word string, successors []bigram.Successor) distribution {
	d := distribution{Word: word, Successors: successors}
	if d.Successors == nil {
		d.Successors = []bigram.Successor{}
	}
	for _, s := range successors {
		d.Total += s.Count
	}
	return d
}

// generated is the rendered result of a generate command.
type generated struct {
	Seed   string   `json:"seed" yaml:"seed"`
	Tokens []string `json:"tokens" yaml:"tokens"`
	Text   string   `json:"text" yaml:"text"`
}

// render writes v in the given format. Table output is produced by table.
func render(w io.Writer, format string, v any, table func(io.Writer) error) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}

// writeTable renders rows as aligned columns under a bold header.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		rendered := make([]string, len(cells))
		for i, cell := range cells {
			rendered[i] = cellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, rendered...), " "))
	}

	var b strings.Builder
	b.WriteString(line(header, headerStyle))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(line(row, lipgloss.NewStyle()))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeNote(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintln(w, noteStyle.Render(fmt.Sprintf(format, args...)))
	return err
}

func renderDistribution(w io.Writer, format string, d distribution) error {
	return render(w, format, d, func(w io.Writer) error {
		if len(d.Successors) == 0 {
			return writeNote(w, "no successors observed for %q", d.Word)
		}
		rows := make([][]string, 0, len(d.Successors))
		for _, s := range d.Successors {
			rows = append(rows, []string{
				s.Word,
				strconv.Itoa(s.Count),
				strconv.FormatFloat(s.Probability, 'f', 4, 64),
			})
		}
		if err := writeTable(w, []string{"NEXT", "COUNT", "PROBABILITY"}, rows); err != nil {
			return err
		}
		return writeNote(w, "%d observed successors of %q", d.Total, d.Word)
	})
}

func renderCorpora(w io.Writer, format string, corpora []bigram.CorpusInfo) error {
	if corpora == nil {
		corpora = []bigram.CorpusInfo{}
	}
	return render(w, format, corpora, func(w io.Writer) error {
		if len(corpora) == 0 {
			return writeNote(w, "no corpora")
		}
		rows := make([][]string, 0, len(corpora))
		for _, c := range corpora {
			rows = append(rows, []string{strconv.Itoa(c.Id), c.Name})
		}
		return writeTable(w, []string{"ID", "NAME"}, rows)
	})
}

func renderStats(w io.Writer, format string, stats *bigram.DBStats) error {
	return render(w, format, stats, func(w io.Writer) error {
		rows := make([][]string, 0, len(stats.Corpora))
		for _, c := range stats.Corpora {
			cs := stats.Stats[c.Id]
			rows = append(rows, []string{
				c.Name,
				strconv.Itoa(cs.Tokens),
				strconv.Itoa(cs.Documents),
				strconv.Itoa(cs.UniqueWords),
				strconv.Itoa(cs.UniqueBigrams),
				strconv.Itoa(cs.TotalBigrams),
			})
		}
		if len(rows) > 0 {
			header := []string{"CORPUS", "TOKENS", "DOCUMENTS", "WORDS", "BIGRAMS", "BIGRAM COUNT"}
			if err := writeTable(w, header, rows); err != nil {
				return err
			}
		}
		return writeNote(w, "%d corpora, %d vocabulary entries", len(stats.Corpora), stats.VocabSize)
	})
}

func renderGenerated(w io.Writer, format string, g generated) error {
	return render(w, format, g, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, g.Text)
		return err
	})
}
