package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstructionLedgerAppendAndRender(t *testing.T) {
	ledger := NewInstructionLedger()
	require.Equal(t, 0, ledger.Len())
	require.Equal(t, "", ledger.Render())

	ledger.Append("Accept both fraction and decimal answers.")
	ledger.Append("Deduct one point for missing units.")

	require.Equal(t, 2, ledger.Len())
	require.Equal(t, []string{
		"Accept both fraction and decimal answers.",
		"Deduct one point for missing units.",
	}, ledger.Entries())

	rendered := ledger.Render()
	require.Contains(t, rendered, "Grading rule update 1")
	require.Contains(t, rendered, "Accept both fraction and decimal answers.")
	require.Contains(t, rendered, "Grading rule update 2")
	require.Contains(t, rendered, "Deduct one point for missing units.")
	require.Less(t,
		strings.Index(rendered, "Accept both fraction"),
		strings.Index(rendered, "Deduct one point"),
	)

	// Render is a pure read.
	require.Equal(t, rendered, ledger.Render())
	require.Equal(t, 2, ledger.Len())
}

func TestInstructionLedgerIgnoresBlankRules(t *testing.T) {
	ledger := NewInstructionLedger()
	ledger.Append("")
	ledger.Append("   \n\t")
	require.Equal(t, 0, ledger.Len())

	ledger.Append("  Trim me.  ")
	require.Equal(t, []string{"Trim me."}, ledger.Entries())
}

func TestInstructionLedgerEntriesReturnsCopy(t *testing.T) {
	ledger := NewInstructionLedger()
	ledger.Append("original rule")

	entries := ledger.Entries()
	entries[0] = "mutated"

	require.Equal(t, []string{"original rule"}, ledger.Entries())
}
