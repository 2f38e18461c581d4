package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/fragtree/pkg/ftree"
	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

func testEntries() []resultEntry {
	tr := ftree.New("C6H12O6", 0)
	tr.AddFragment(tr.Root(), "C5H10O5", 4.5)
	return []resultEntry{
		{Name: "glucose", Result: ilp.Result{Status: ilp.StatusOptimal, Tree: tr, Score: 4.5}},
		{Name: "empty", Result: ilp.Result{Status: ilp.StatusInfeasible}},
		{Name: "ribose", Result: ilp.Result{Status: ilp.StatusOptimal, Tree: tr, Score: 4.5}},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m resultListModel, keys ...string) (resultListModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(resultListModel)
	}
	return m, cmd
}

func TestResultListNavigation(t *testing.T) {
	tests := []struct {
		keys   []string
		cursor int
	}{
		{nil, 0},
		{[]string{"down"}, 1},
		{[]string{"j", "j", "j", "j"}, 2},
		{[]string{"down", "up", "k"}, 0},
	}
	for _, tt := range tests {
		m, _ := press(newResultListModel(testEntries()), tt.keys...)
		if m.Cursor != tt.cursor {
			t.Errorf("keys %v: cursor = %d, want %d", tt.keys, m.Cursor, tt.cursor)
		}
	}
}

func TestResultListSelect(t *testing.T) {
	m, cmd := press(newResultListModel(testEntries()), "down", "down", "enter")
	if m.Selected == nil || m.Selected.Name != "ribose" {
		t.Fatalf("Selected = %+v", m.Selected)
	}
	if cmd == nil {
		t.Error("selecting should quit")
	}

	// results without a tree cannot be picked
	m, cmd = press(newResultListModel(testEntries()), "down", "enter")
	if m.Selected != nil || cmd != nil {
		t.Errorf("infeasible result was selected: %+v", m.Selected)
	}

	m, cmd = press(newResultListModel(testEntries()), "q")
	if m.Selected != nil || cmd == nil {
		t.Error("q should quit without a selection")
	}
}

func TestResultListScrolls(t *testing.T) {
	m := newResultListModel(testEntries())
	next, _ := m.Update(tea.WindowSizeMsg{Height: 3})
	m = next.(resultListModel)
	if m.Height != 5 {
		t.Fatalf("Height = %d, want the minimum 5", m.Height)
	}
	m.Height = 2
	m, _ = press(m, "down", "down")
	if m.Offset != 1 {
		t.Errorf("Offset = %d, want 1", m.Offset)
	}
	m, _ = press(m, "up", "up")
	if m.Offset != 0 {
		t.Errorf("Offset = %d, want 0", m.Offset)
	}
}

func TestResultListView(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := testEntries()
	entries[0].Modified = now.Add(-2 * time.Hour)
	m := newResultListModel(entries)
	m.now = func() time.Time { return now }

	view := m.View()
	for _, want := range []string{"glucose", "infeasible", "4.500", "2h ago", "[1/3]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Jan 30, 2025"},
	}
	for _, tt := range tests {
		if got := formatAge(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestLoadResultEntries(t *testing.T) {
	dir := t.TempDir()
	for _, e := range testEntries()[:2] {
		data, err := fio.EncodeResult(e.Result)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name+".result.json"), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, dir, "bad.result.json", "{")
	writeFile(t, dir, "graph.json", testGraph)

	var skipped []string
	entries, err := loadResultEntries(dir, func(path string, err error) {
		skipped = append(skipped, filepath.Base(path))
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
	if len(skipped) != 1 || skipped[0] != "bad.result.json" {
		t.Errorf("skipped = %v", skipped)
	}
}
