package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFindByFileHashReturnsEveryTicketAcrossRuns(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)
	ctx := context.Background()

	first, err := s.CreateTicket(ctx, CreateInput{
		TicketNumber: "WM-1", TicketDate: time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
		JobID: 1, MaterialID: 1, MaterialName: "CLEAN", TicketTypeID: 1,
		Quantity: decimal.NewFromFloat(1), QuantityUnit: "TONS",
		FileID: "run-1.pdf", FilePage: 1, FileHash: "shared-hash",
		RequestGUID: "req-1", ProcessedBy: "test",
	})
	require.NoError(t, err)

	refs, err := s.FindByFileHash(ctx, "shared-hash")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, first.Ticket.ID, refs[0].TicketID)
	require.Equal(t, "run-1.pdf", refs[0].FileID)

	none, err := s.FindByFileHash(ctx, "never-seen")
	require.NoError(t, err)
	require.Empty(t, none)
}
