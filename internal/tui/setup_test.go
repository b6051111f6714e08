package tui

import (
	"regexp"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/query/querytest"
	"github.com/usernameweb/acctdash/internal/testutil"
)

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// asciiProfile renders without colors so assertions can match plain text.
// The original profile is restored via t.Cleanup.
func asciiProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// cmdTimeout bounds how long drain waits for one command. Timer commands
// (spinner, debounce, flash, cursor blink) take longer and are dropped.
const cmdTimeout = 40 * time.Millisecond

func execCmd(c tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- c() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}

// drain runs cmd and feeds every resulting data message back into m until
// no commands remain.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 500 {
			t.Fatal("drain: too many steps")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := execCmd(c).(type) {
		case nil, spinnerTickMsg, flashClearMsg, searchDebounceMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			next, nc := m.Update(msg)
			m = next.(Model)
			queue = append(queue, nc)
		}
	}
	return m
}

// send delivers msg to m and drains the resulting commands.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	return drain(t, next.(Model), cmd)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends each key in order.
func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		m = send(t, m, k)
	}
	return m
}

// typeText sends s one rune at a time.
func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m = send(t, m, keyRunes(string(r)))
	}
	return m
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyLeft  = tea.KeyMsg{Type: tea.KeyLeft}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keySpace = keyRunes(" ")
	keyCtrlR = tea.KeyMsg{Type: tea.KeyCtrlR}
)

// standardAccounts is the fixture most tests share: three rows for the
// owner and one for somebody else.
func standardAccounts() []query.Account {
	return []query.Account{
		testutil.NewAccount(1).WithUsername("alice").WithGroup("alpha").WithTag("vip").CreatedDaysAgo(0).Build(),
		testutil.NewAccount(2).WithUsername("bob").WithGroup("beta").CreatedDaysAgo(3).Build(),
		testutil.NewAccount(3).WithUsername("carol").WithGroup("alpha").CreatedDaysAgo(40).Build(),
		testutil.NewAccount(4).WithUsername("mallory").WithOwner("other@example.com").Build(),
	}
}

// newTestModel builds a sized, loaded model over accounts.
func newTestModel(t *testing.T, accounts ...query.Account) (Model, *querytest.MemoryBackend) {
	t.Helper()
	backend := querytest.NewMemoryBackend(accounts...)
	m := New(backend, Options{
		Owner:       testutil.Owner,
		Version:     "test",
		Classifier:  testutil.Classifier(),
		Destination: export.DirDestination{Dir: t.TempDir()},
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	m = next.(Model)
	return drain(t, m, m.Init()), backend
}
