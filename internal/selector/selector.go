// Package selector implements the interactive recipient menu and the pure
// filtering behind it.
package selector

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shineum/debt-notifier/internal/console"
	"github.com/shineum/debt-notifier/internal/roster"
)

// Mode is one of the four selection criteria offered to the operator.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeAll
	ModeEmail
	ModeDiscipline
	ModeLevel
)

// ParseMode maps the operator's menu answer to a Mode.
func ParseMode(s string) Mode {
	switch strings.TrimSpace(s) {
	case "1":
		return ModeAll
	case "2":
		return ModeEmail
	case "3":
		return ModeDiscipline
	case "4":
		return ModeLevel
	default:
		return ModeUnknown
	}
}

const menu = `
Who should receive the notices?
1 - All students
2 - One student by email
3 - All students of a discipline
4 - All students of a level (Bachelor / Master)
`

// valuePrompts holds the follow-up question for modes that need a value.
var valuePrompts = map[Mode]string{
	ModeEmail:      "Enter the student's email: ",
	ModeDiscipline: "Enter the discipline name: ",
	ModeLevel:      "Enter the level (Bachelor / Master): ",
}

// Select prints the menu, asks for a mode and, when needed, its value, and
// returns the matching recipients. An unrecognized choice yields an empty
// list, not an error.
func Select(ctx context.Context, out io.Writer, table *roster.Table, p console.Prompter) ([]string, error) {
	fmt.Fprint(out, menu)

	choice, err := p.Ask(ctx, "Enter option number: ")
	if err != nil {
		return nil, err
	}
	mode := ParseMode(choice)

	var value string
	if prompt, ok := valuePrompts[mode]; ok {
		value, err = p.Ask(ctx, prompt)
		if err != nil {
			return nil, err
		}
	}

	return Filter(table.Records(), mode, value), nil
}

// Filter applies mode to records and returns the distinct recipient
// addresses, sorted. Matching is case-insensitive on trimmed values.
// Addresses are deduplicated by their normalized form; the first spelling
// seen is kept. Empty and missing-value placeholders are dropped.
func Filter(records []roster.StudentRecord, mode Mode, value string) []string {
	value = strings.TrimSpace(value)

	var match func(roster.StudentRecord) bool
	switch mode {
	case ModeAll:
		match = func(roster.StudentRecord) bool { return true }
	case ModeEmail:
		match = func(r roster.StudentRecord) bool { return equalFoldTrim(r.Email, value) }
	case ModeDiscipline:
		match = func(r roster.StudentRecord) bool { return equalFoldTrim(r.Discipline, value) }
	case ModeLevel:
		match = func(r roster.StudentRecord) bool { return equalFoldTrim(r.Level, value) }
	default:
		return []string{}
	}

	seen := make(map[string]bool)
	recipients := []string{}
	for _, r := range records {
		if !match(r) {
			continue
		}
		addr := strings.TrimSpace(r.Email)
		if isMissing(addr) {
			continue
		}
		key := roster.NormalizeEmail(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		recipients = append(recipients, addr)
	}

	sort.Strings(recipients)
	return recipients
}

func equalFoldTrim(field, value string) bool {
	return strings.EqualFold(strings.TrimSpace(field), value)
}

// isMissing reports empty cells and the "nan" placeholder spreadsheet
// exports leave in blank cells.
func isMissing(addr string) bool {
	return addr == "" || strings.EqualFold(addr, "nan")
}
