// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hexlab-tools/hexlab/lib/interp"
	"github.com/hexlab-tools/hexlab/lib/schedule"
	"github.com/hexlab-tools/hexlab/lib/session"
)

// shell drives the interpreter through the scheduler. Foreground lines
// run as interactive tasks against the shared workspace; lines ending
// in "&" run as background tasks in isolated workspaces.
type shell struct {
	interp    *interp.Interpreter
	scheduler *schedule.Scheduler
	session   *session.Session
	styles    styles
}

type styles struct {
	prompt lipgloss.Style
	err    lipgloss.Style
	notice lipgloss.Style
}

func newStyles(terminal bool) styles {
	if !terminal {
		plain := lipgloss.NewStyle()
		return styles{prompt: plain, err: plain, notice: plain}
	}
	return styles{
		prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		notice: lipgloss.NewStyle().Faint(true),
	}
}

// runLine executes one command line as an interactive task. The task
// runs inline on the shared workspace, so output prints live and the
// address and config changes land in the session immediately.
func (s *shell) runLine(line string) error {
	handle, err := s.scheduler.Submit(schedule.Task{
		Kind: schedule.Interactive,
		Name: firstWord(line),
		Run: func(ctx context.Context, tc *session.Context) error {
			return s.interp.Execute(ctx, tc, line)
		},
	})
	if err != nil {
		return err
	}
	return handle.Err()
}

// runScript executes a script file as a single interactive task, so
// the whole script sees one consistent workspace.
func (s *shell) runScript(path string) error {
	lines, err := readScript(path)
	if err != nil {
		return err
	}
	handle, err := s.scheduler.Submit(schedule.Task{
		Kind: schedule.Interactive,
		Name: path,
		Run: func(ctx context.Context, tc *session.Context) error {
			return s.interp.ExecuteScript(ctx, tc, lines)
		},
	})
	if err != nil {
		return err
	}
	return handle.Err()
}

// runBackground submits a command line as a background task and
// reports completion asynchronously. The task works on an isolated
// snapshot; its output and final address publish when it commits.
func (s *shell) runBackground(line string) error {
	handle, err := s.scheduler.Submit(schedule.Task{
		Kind: schedule.Background,
		Name: firstWord(line),
		Run: func(ctx context.Context, tc *session.Context) error {
			return s.interp.Execute(ctx, tc, line)
		},
	})
	if err != nil {
		return err
	}
	fmt.Println(s.styles.notice.Render(fmt.Sprintf("[%s] started: %s", shortID(handle), line)))
	go func() {
		<-handle.Done()
		if err := handle.Err(); err != nil {
			fmt.Println(s.styles.err.Render(fmt.Sprintf("[%s] failed: %v", shortID(handle), err)))
			return
		}
		fmt.Println(s.styles.notice.Render(fmt.Sprintf("[%s] done", shortID(handle))))
	}()
	return nil
}

// repl reads command lines until EOF or an exit command. Errors from
// individual commands are printed, not fatal.
func (s *shell) repl(scanner *bufio.Scanner) error {
	prompt := s.styles.prompt.Render("hexlab>") + " "
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		done, err := s.dispatch(line)
		if done {
			return err
		}
		if err != nil {
			fmt.Println(s.styles.err.Render(err.Error()))
		}
	}
}

// dispatch routes one REPL line. The bool reports whether the REPL
// should exit.
func (s *shell) dispatch(line string) (bool, error) {
	switch firstWord(line) {
	case "q", "quit", "exit":
		return true, nil
	case "save":
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: save <path>")
		}
		return false, saveState(s.session, fields[1])
	}
	if rest, ok := strings.CutSuffix(line, "&"); ok {
		return false, s.runBackground(strings.TrimSpace(rest))
	}
	return false, s.runLine(line)
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return line
	}
	return fields[0]
}

func shortID(handle *schedule.Handle) string {
	return handle.ID().String()[:8]
}
