package service

import (
	"fmt"
	"strings"
	"sync"
)

// InstructionLedger accumulates grading rules generated from teacher
// feedback. Entries are append-only and chronological: later rules are
// expected to refine or override earlier ones through prompt order alone,
// so nothing is ever pruned, deduplicated, or reordered.
type InstructionLedger struct {
	mu      sync.RWMutex
	entries []string
}

// NewInstructionLedger returns an empty ledger.
func NewInstructionLedger() *InstructionLedger {
	return &InstructionLedger{}
}

// Append records a new rule. Whitespace-only rules are ignored.
func (l *InstructionLedger) Append(rule string) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, rule)
}

// Len returns the number of recorded rules.
func (l *InstructionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the recorded rules in append order.
func (l *InstructionLedger) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Render produces the single text blob replayed into every grading request.
// Each entry is set off by a visible separator and tagged as a machine-added
// correction so a human reading the raw instructions can tell accumulated
// rules apart from the teacher's original text.
func (l *InstructionLedger) Render() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return ""
	}

	var b strings.Builder
	for i, entry := range l.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Grading rule update %d (added from teacher feedback) ---\n%s", i+1, entry)
	}
	return b.String()
}
