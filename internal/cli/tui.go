package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

// resultEntry is one saved result file.
type resultEntry struct {
	Name     string
	Path     string
	Result   ilp.Result
	Modified time.Time
}

// loadResultEntries reads every *.result.json in dir, newest first.
// Files that do not decode are reported through skip and left out.
func loadResultEntries(dir string, skip func(path string, err error)) ([]resultEntry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.result.json"))
	if err != nil {
		return nil, err
	}
	entries := make([]resultEntry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			skip(path, err)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			skip(path, err)
			continue
		}
		res, err := fio.DecodeResult(data)
		if err != nil {
			skip(path, err)
			continue
		}
		entries = append(entries, resultEntry{
			Name:     strings.TrimSuffix(filepath.Base(path), ".result.json"),
			Path:     path,
			Result:   res,
			Modified: info.ModTime(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// resultListModel is the bubbletea model for picking a result to render.
type resultListModel struct {
	Entries  []resultEntry
	Cursor   int
	Offset   int
	Height   int
	Selected *resultEntry

	now func() time.Time
}

func newResultListModel(entries []resultEntry) resultListModel {
	return resultListModel{Entries: entries, Height: 15, now: time.Now}
}

func (m resultListModel) Init() tea.Cmd {
	return nil
}

func (m resultListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Entries) == 0 {
				return m, nil
			}
			// only optimal results have a tree to draw
			e := m.Entries[m.Cursor]
			if e.Result.Tree == nil {
				return m, nil
			}
			m.Selected = &e
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m resultListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Result"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ render  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Entries))
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}

	var rows [][]string
	for i := m.Offset; i < end; i++ {
		e := m.Entries[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		score, size := "—", "—"
		if e.Result.Tree != nil {
			score = strconv.FormatFloat(e.Result.Score, 'f', 3, 64)
			size = strconv.Itoa(e.Result.Tree.Len())
		}
		rows = append(rows, []string{cursor, e.Name, e.Result.Status.String(), score, size, formatAge(e.Modified, now)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Result", "Status", "Score", "Fragments", "Modified").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(m.Entries) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if m.Entries[idx].Result.Tree == nil {
				base = base.Foreground(colorDim)
			} else if col == 2 {
				base = base.Foreground(colorGreen)
			}
			if idx == m.Cursor {
				base = base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", min(m.Cursor+1, len(m.Entries)), len(m.Entries))))

	return b.String()
}

func formatAge(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
