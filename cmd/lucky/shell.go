package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/luckylubricants/rewards/internal/app"
)

const historyFile = "shell_history"

// cmdShell runs an interactive session. Each line is dispatched like a
// command-line invocation; `tab <name>` switches the active tab.
func (e *env) cmdShell(ctx context.Context) error {
	e.boot(ctx)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)
	e.line = line
	defer func() { e.line = nil }()

	histPath := filepath.Join(e.cfg.StateDir, historyFile)
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(histPath)
		if err != nil {
			e.log.Warn("saving shell history", zap.Error(err))
			return
		}
		line.WriteHistory(f)
		f.Close()
	}()

	fmt.Fprintln(e.out, "Lucky Lubricants rewards. Type `help` for commands, `exit` to leave.")
	for {
		in, err := line.Prompt(e.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(e.out)
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(in)
		if len(fields) == 0 {
			continue
		}
		line.AppendHistory(in)

		switch cmd := fields[0]; cmd {
		case "exit", "quit":
			return nil
		case "help":
			printUsage()
		case "shell":
			fmt.Fprintln(e.out, "already in the shell")
		case "tab":
			e.switchTab(fields[1:])
		default:
			if err := e.run(ctx, cmd, fields[1:]); err != nil && !errors.Is(err, errShown) {
				fmt.Fprintf(e.out, "error: %v\n", err)
			}
		}
	}
}

func (e *env) prompt() string {
	s := e.sh.State()
	if !s.LoggedIn {
		return "lucky> "
	}
	return fmt.Sprintf("lucky %s [%d pts]> ", s.ActiveTab, s.User.Points)
}

func (e *env) switchTab(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(e.out, "tabs: %v\n", app.Tabs)
		return
	}
	t, ok := app.ParseTab(args[0])
	if !ok {
		fmt.Fprintf(e.out, "unknown tab %q\n", args[0])
		return
	}
	if err := e.sh.SelectTab(t); err != nil {
		fmt.Fprintf(e.out, "error: %v\n", err)
	}
}

func complete(in string) []string {
	names := []string{"login", "register", "logout", "status", "twin", "tab", "help", "exit"}
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, strings.ToLower(in)) {
			out = append(out, n)
		}
	}
	return out
}
