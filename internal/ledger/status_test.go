package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	pay := func(amounts ...string) []Payment {
		out := make([]Payment, len(amounts))
		for i, a := range amounts {
			out[i] = Payment{Amount: decimal.RequireFromString(a)}
		}
		return out
	}

	cases := []struct {
		name  string
		entry Entry
		want  Status
	}{
		{
			name:  "untouched before due date",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: future},
			want:  StatusOpen,
		},
		{
			name:  "untouched past due date",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: past},
			want:  StatusOverdue,
		},
		{
			name:  "due today is not yet overdue",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
			want:  StatusOpen,
		},
		{
			name:  "partially paid past due stays partially paid",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: past, Payments: pay("40")},
			want:  StatusPartiallyPaid,
		},
		{
			name:  "fully paid wins over due date",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: past, Payments: pay("60", "40")},
			want:  StatusPaid,
		},
		{
			name:  "reversal reopens a paid entry",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: future, Payments: pay("100", "-100")},
			want:  StatusOpen,
		},
		{
			name:  "legal override wins over everything",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: past, Payments: pay("100"), Override: StatusLegal},
			want:  StatusLegal,
		},
		{
			name:  "pending approval override",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: future, Override: StatusPendingApproval},
			want:  StatusPendingApproval,
		},
		{
			name:  "renegotiated override",
			entry: Entry{Amount: decimal.RequireFromString("100"), DueDate: past, Override: StatusRenegotiated},
			want:  StatusRenegotiated,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.entry, today))
		})
	}
}
