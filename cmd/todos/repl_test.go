package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todostream/internal/app"
	"todostream/pkg/config"
)

func runSession(t *testing.T, script string) string {
	t.Helper()
	c, err := app.NewContainer(context.Background(), config.Default(), zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var out bytes.Buffer
	err = newREPL(strings.NewReader(script), &out, c).run(context.Background())
	require.NoError(t, err)
	return out.String()
}

func TestREPL_FullSession(t *testing.T) {
	out := runSession(t, `add buy milk
add call mom
list
toggle 1
filter completed
list
filter active
edit 1 call mom tonight
filter all
list
clear
list
rm 1
list
quit
`)

	markers := []string{
		"added: buy milk",
		"added: call mom",
		" 1. [ ] buy milk",
		" 2. [ ] call mom",
		"2 shown, 2 remaining (filter: all)",
		"completed: buy milk",
		" 1. [x] buy milk",
		"1 shown, 1 remaining (filter: completed)",
		"edited: call mom tonight",
		" 2. [ ] call mom tonight",
		"2 shown, 1 remaining (filter: all)",
		"cleared 1 completed",
		" 1. [ ] call mom tonight",
		"removed: call mom tonight",
		"nothing to show (filter: all)",
	}
	last := -1
	for _, marker := range markers {
		idx := strings.Index(out, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %q in session output:\n%s", marker, out)
		assert.Greater(t, idx, last, "%q out of order in session output:\n%s", marker, out)
		last = idx
	}
}

func TestREPL_IndexesFollowTheFilteredView(t *testing.T) {
	out := runSession(t, `add one
add two
toggle 2
filter completed
toggle 1
list
quit
`)

	// under filter=completed, item 1 is "two"; toggling it back empties the view
	assert.Contains(t, out, "active: two")
	assert.Contains(t, out, "nothing to show (filter: completed)")
}

func TestREPL_BadIndexes(t *testing.T) {
	out := runSession(t, `toggle 5
rm x
quit
`)

	assert.Contains(t, out, "no todo at 5")
	assert.Contains(t, out, `bad index "x"`)
}

func TestREPL_ErrorsAreReportedNotFatal(t *testing.T) {
	out := runSession(t, `add
filter banana
filter
quit
`)

	assert.Contains(t, out, "error:")
	// the bad filter left the view untouched
	assert.Contains(t, out, "filter: all")
}

func TestREPL_UnknownCommand(t *testing.T) {
	out := runSession(t, "frobnicate\nquit\n")

	assert.Contains(t, out, `unknown command "frobnicate"`)
}

func TestREPL_HelpListsCommands(t *testing.T) {
	out := runSession(t, "help\nquit\n")

	for _, cmd := range []string{"add", "toggle", "edit", "rm", "filter", "clear", "quit"} {
		assert.Contains(t, out, cmd)
	}
}

func TestREPL_EOFEndsSession(t *testing.T) {
	out := runSession(t, "add survive eof\n")

	assert.Contains(t, out, "added: survive eof")
}
