// Package console runs the BASIC shell on the local terminal.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/shell"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

const (
	defaultPrompt = "> "
	historyFile   = ".picobasic_history"
)

// Console feeds input lines to a shell. Interrupts are relayed to the run
// in progress through poller; those arriving between runs are discarded.
type Console struct {
	shell   *shell.Shell
	poller  *runner.SignalPoller
	out     io.Writer
	prompt  string
	history bool
}

// New returns a Console for sh. poller may be nil when no signals are
// relayed.
func New(sh *shell.Shell, poller *runner.SignalPoller, out io.Writer) *Console {
	prompt := configuration.GetString("Console", "prompt", defaultPrompt)
	if prompt == "" {
		prompt = defaultPrompt
	} else if !strings.HasSuffix(prompt, " ") {
		prompt += " "
	}
	return &Console{
		shell:   sh,
		poller:  poller,
		out:     out,
		prompt:  prompt,
		history: configuration.GetBool("Console", "history", true),
	}
}

// Run reads from stdin until EOF or EXIT. A terminal gets line editing;
// anything else is read line by line.
func (c *Console) Run() error {
	c.shell.Banner()
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return c.runLiner()
	}
	return c.RunPlain(os.Stdin)
}

// RunPlain reads lines from r and prints a prompt before each.
func (c *Console) RunPlain(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(c.out, c.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if c.handle(scanner.Text()) {
			return nil
		}
	}
}

func (c *Console) runLiner() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := ""
	if c.history {
		if home, err := os.UserHomeDir(); err == nil {
			histPath = filepath.Join(home, historyFile)
		}
		if f, err := os.Open(histPath); err == nil {
			ln.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		line, err := ln.Prompt(c.prompt)
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(c.out)
			return nil
		case err != nil:
			return err
		}
		if c.history && strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if c.handle(line) {
			return nil
		}
	}
}

// handle executes one line and reports whether the session ends.
func (c *Console) handle(line string) bool {
	if strings.EqualFold(strings.TrimSpace(line), "exit") {
		logger.Info(logger.AreaConsole, "console session ended")
		return true
	}
	if c.poller != nil {
		c.poller.Drain()
	}
	c.shell.Execute(line)
	return false
}
