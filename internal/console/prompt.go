// Package console holds the operator-facing I/O: prompts that read one line
// of input and aligned previews of student records.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrScriptExhausted is returned by Scripted when it has no answers left.
var ErrScriptExhausted = errors.New("no scripted answers left")

// Prompter shows a prompt and returns one line of operator input without
// the trailing newline.
type Prompter interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// LinePrompter reads answers line by line from an input stream.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter returns a LinePrompter that writes prompts to out and
// reads answers from in.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

type readResult struct {
	line string
	err  error
}

// Ask blocks until a full line is read or ctx is done. A final line
// without a newline is returned as-is; an empty stream yields io.EOF.
func (p *LinePrompter) Ask(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	// The read runs on its own goroutine so an interrupt can abandon it.
	ch := make(chan readResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		line := strings.TrimRight(r.line, "\r\n")
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && line != "" {
				return line, nil
			}
			return "", fmt.Errorf("failed to read answer: %w", r.err)
		}
		return line, nil
	}
}

// Scripted answers prompts from a fixed list, for tests and rehearsals.
type Scripted struct {
	answers []string
	prompts []string
	out     io.Writer
}

// NewScripted returns a Scripted prompter. When out is non-nil each prompt
// and its answer are echoed to it.
func NewScripted(out io.Writer, answers ...string) *Scripted {
	return &Scripted{answers: answers, out: out}
}

// Ask returns the next scripted answer.
func (s *Scripted) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", ErrScriptExhausted
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if s.out != nil {
		fmt.Fprintln(s.out, prompt+answer)
	}
	return answer, nil
}

// Prompts returns every prompt asked so far, in order.
func (s *Scripted) Prompts() []string {
	return append([]string(nil), s.prompts...)
}
