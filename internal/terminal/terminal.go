// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal wraps the few terminal operations the CLI needs: clearing
// echoed prompts, masked input and a single-line spinner.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// Width returns the width of stdout, or 80 when it is not a terminal.
func Width() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// linesUsed is how many rows textLength characters occupy at width, plus
// the row the cursor moved to when the user pressed Enter.
func linesUsed(textLength, width int) int {
	lines := int(math.Ceil(float64(textLength) / float64(width)))
	if lines < 1 {
		lines = 1
	}
	return lines + 1
}

// ClearPreviousLines erases a prompt and the user's answer after Enter.
// textLength is len(prompt)+len(input).
func ClearPreviousLines(w io.Writer, textLength int) {
	n := linesUsed(textLength, Width())
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}

// ReadSecret prompts for a value without echoing it. Outside a terminal it
// reads one line from r.
func ReadSecret(prompt string, r io.Reader) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var frames = []string{"|", "/", "-", "\\"}

// Spinner is a one-line progress indicator drawn in a pterm area.
type Spinner struct {
	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartSpinner draws text behind a rotating frame until Stop is called.
// When the area cannot be started the spinner is silent.
func StartSpinner(text string) *Spinner {
	s := &Spinner{stop: make(chan struct{})}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return s
	}
	s.area = area
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				area.Update(fmt.Sprintf("%s %s", frames[i%len(frames)], text))
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Stop removes the spinner. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if s.area != nil {
			_ = s.area.Stop()
			cursor.Show()
		}
	})
}
