package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"todostream/internal/app"
	"todostream/internal/core/domain"
)

const usage = `commands:
  add <text>            create a todo
  list                  show the current view
  toggle <n>            flip completion of item n
  edit <n> <text>       replace the text of item n
  rm <n>                remove item n
  filter [all|active|completed]
  clear                 remove every completed todo
  quit`

// repl drives the container over a line protocol. Item numbers are
// positional against the currently filtered view. It is a driver for the
// stores, not a UI layer.
type repl struct {
	in  io.Reader
	out io.Writer
	c   *app.Container
}

func newREPL(in io.Reader, out io.Writer, c *app.Container) *repl {
	return &repl{in: in, out: out, c: c}
}

func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	r.printf("todostream (try: help)\n")
	for {
		r.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.dispatch(ctx, line); quit {
			return nil
		}
	}
}

func (r *repl) dispatch(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		r.printf("%s\n", usage)
	case "add":
		r.add(ctx, rest)
	case "list":
		r.renderList()
	case "toggle":
		r.toggle(ctx, rest)
	case "edit":
		r.edit(ctx, rest)
	case "rm":
		r.remove(ctx, rest)
	case "filter":
		r.filter(rest)
	case "clear":
		r.clear(ctx)
	default:
		r.printf("unknown command %q (try: help)\n", cmd)
	}
	return false
}

func (r *repl) add(ctx context.Context, text string) {
	todo, err := r.c.TodoList.Add(ctx, text)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.await(func() bool {
		_, ok := r.c.TodoList.Find(todo.ID)
		return ok
	})
	r.printf("added: %s\n", todo.Title)
}

func (r *repl) toggle(ctx context.Context, arg string) {
	todo, ok := r.todoAt(arg)
	if !ok {
		return
	}
	if err := r.c.TodoList.Toggle(ctx, todo.ID); err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.await(func() bool {
		current, ok := r.c.TodoList.Find(todo.ID)
		return ok && current.Completed != todo.Completed
	})
	state := "active"
	if !todo.Completed {
		state = "completed"
	}
	r.printf("%s: %s\n", state, todo.Title)
}

func (r *repl) edit(ctx context.Context, rest string) {
	arg, text, found := strings.Cut(rest, " ")
	text = strings.TrimSpace(text)
	if !found || text == "" {
		r.printf("usage: edit <n> <text>\n")
		return
	}
	todo, ok := r.todoAt(arg)
	if !ok {
		return
	}
	if err := r.c.TodoList.Edit(ctx, todo.ID, text); err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.await(func() bool {
		current, ok := r.c.TodoList.Find(todo.ID)
		return ok && current.Title == text
	})
	r.printf("edited: %s\n", text)
}

func (r *repl) remove(ctx context.Context, arg string) {
	todo, ok := r.todoAt(arg)
	if !ok {
		return
	}
	if err := r.c.TodoList.Remove(ctx, todo); err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.await(func() bool {
		_, ok := r.c.TodoList.Find(todo.ID)
		return !ok
	})
	r.printf("removed: %s\n", todo.Title)
}

func (r *repl) filter(name string) {
	if name == "" {
		r.printf("filter: %s\n", r.c.Views.Filter.Read())
		return
	}
	if err := r.c.Views.SetFilter(name); err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.printf("filter: %s\n", r.c.Views.Filter.Read())
}

func (r *repl) clear(ctx context.Context) {
	removed, err := r.c.TodoList.ClearCompleted(ctx)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.await(func() bool {
		for _, t := range r.c.TodoList.Todos() {
			if t.Completed {
				return false
			}
		}
		return true
	})
	r.printf("cleared %d completed\n", removed)
}

func (r *repl) renderList() {
	todos := r.c.Views.Filtered.Read()
	if len(todos) == 0 {
		r.printf("nothing to show (filter: %s)\n", r.c.Views.Filter.Read())
		return
	}
	for i, t := range todos {
		box := " "
		if t.Completed {
			box = "x"
		}
		r.printf("%2d. [%s] %s\n", i+1, box, t.Title)
	}
	r.printf("%d shown, %d remaining (filter: %s)\n",
		len(todos), r.c.Views.Remaining.Read(), r.c.Views.Filter.Read())
}

// todoAt resolves a 1-based index against the filtered view.
func (r *repl) todoAt(arg string) (domain.Todo, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		r.printf("bad index %q\n", arg)
		return domain.Todo{}, false
	}
	todos := r.c.Views.Filtered.Read()
	if n > len(todos) {
		r.printf("no todo at %d\n", n)
		return domain.Todo{}, false
	}
	return todos[n-1], true
}

// await blocks until the store reflects a mutation, bounded so a wedged
// stream cannot hang the prompt. Mutations re-emit asynchronously; waiting
// here keeps scripted sessions deterministic.
func (r *repl) await(pred func() bool) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *repl) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}
