package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"

	"github.com/CTAG07/nextword/internal/ingest"
	"github.com/CTAG07/nextword/pkg/bigram"
)

var (
	successorBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	chainStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// explorer is the Bubble Tea model of the explore command. Typing a word and
// pressing enter shows its successors; tab follows the selected successor.
type explorer struct {
	model      *bigram.Model
	title      string
	input      textinput.Model
	viewport   viewport.Model
	chain      []string
	successors []bigram.Successor
	cursor     int
	status     string
	ready      bool
}

func newExplorer(model *bigram.Model, title string) explorer {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a word and press Enter"
	ti.Focus()
	vp := viewport.New(0, 0)
	return explorer{
		model:    model,
		title:    title,
		input:    ti,
		viewport: vp,
		status:   fmt.Sprintf("%d tokens, %d distinct words. Tab follows the selected word.", model.Tokens(), len(model.Vocabulary())),
	}
}

func (e explorer) Init() tea.Cmd { return textinput.Blink }

func (e explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.ready = true
		_, bh := successorBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 3 + ih + 1 // title, chain, status and a spacer
		e.viewport.Width = max(20, msg.Width)
		e.viewport.Height = max(3, msg.Height-reserved-bh)
		e.viewport.SetContent(e.renderSuccessors())
		return e, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return e, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if word := strings.ToLower(strings.TrimSpace(e.input.Value())); word != "" {
				e.chain = []string{word}
				e.show(word)
				e.input.SetValue("")
				return e, nil
			}
		case "tab":
			if len(e.successors) > 0 {
				word := e.successors[e.cursor].Word
				e.chain = append(e.chain, word)
				e.show(word)
				return e, nil
			}
		case "down":
			if len(e.successors) > 0 {
				e.cursor = (e.cursor + 1) % len(e.successors)
				e.viewport.SetContent(e.renderSuccessors())
				return e, nil
			}
		case "up":
			if len(e.successors) > 0 {
				e.cursor = (e.cursor - 1 + len(e.successors)) % len(e.successors)
				e.viewport.SetContent(e.renderSuccessors())
				return e, nil
			}
		}
	}
	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	return e, cmd
}

// show makes word the current word.
func (e *explorer) show(word string) {
	e.successors = e.model.Successors(word)
	e.cursor = 0
	if len(e.successors) == 0 {
		e.status = fmt.Sprintf("No successors observed for %q", word)
	} else {
		e.status = fmt.Sprintf("%d distinct successors of %q", len(e.successors), word)
	}
	e.viewport.SetContent(e.renderSuccessors())
}

func (e explorer) View() string {
	if !e.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("nextword: " + e.title)
	chain := chainStyle.Render(strings.Join(e.chain, " "))
	list := successorBoxStyle.Render(e.viewport.View())
	input := inputBoxStyle.Render(e.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(e.status)
	return header + "\n" + chain + "\n" + list + "\n" + input + "\n" + status
}

func (e explorer) renderSuccessors() string {
	if len(e.successors) == 0 {
		return "Nothing to show yet."
	}
	var b strings.Builder
	for i, s := range e.successors {
		line := fmt.Sprintf("%-20s %6s  %.4f", s.Word, strconv.Itoa(s.Count), s.Probability)
		if i == e.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (a *app) explore(c *cli.Context) error {
	var (
		model *bigram.Model
		title string
	)

	switch {
	case c.IsSet("file") && c.IsSet("corpus"):
		return errors.New("use either --file or --corpus, not both")
	case c.IsSet("file"):
		text, err := ingest.ReadFile(c.String("file"))
		if err != nil {
			return err
		}
		model, title = bigram.NewModel(text), c.String("file")
	case c.IsSet("corpus"):
		store, done, err := a.openStore()
		if err != nil {
			return err
		}
		info, err := corpusByName(c.Context, store, c.String("corpus"))
		if err == nil {
			model, err = store.Load(c.Context, info)
		}
		done()
		if err != nil {
			return err
		}
		title = info.Name
	default:
		model, title = bigram.NewModel(demoCorpus), "demo corpus"
	}

	_, err := tea.NewProgram(newExplorer(model, title), tea.WithAltScreen()).Run()
	return err
}
