package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

func sampleReviewEntries() []ticket.ReviewQueueEntry {
	return []ticket.ReviewQueueEntry{
		{PageID: "p1", Reason: ticket.ReasonMissingManifest, Severity: ticket.SeverityCritical, FilePath: "a.pdf", PageNum: 1, CreatedAt: time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)},
		{PageID: "p2", Reason: ticket.ReasonInvalidManifestFormat, Severity: ticket.SeverityWarning, FilePath: "b.pdf", PageNum: 2, CreatedAt: time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)},
		{PageID: "p3", Reason: ticket.ReasonMissingTicketNumber, Severity: ticket.SeverityCritical, FilePath: "c.pdf", PageNum: 1, CreatedAt: time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)},
	}
}

func TestWriteReviewQueueCSVOrdersBySeverityThenCreatedAt(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteReviewQueueCSV(&buf, sampleReviewEntries()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "p3") // CRITICAL, earlier created_at
	assert.Contains(t, lines[2], "p1") // CRITICAL, later created_at
	assert.Contains(t, lines[3], "p2") // WARNING
}

func TestWriteReviewQueueJSONIsSeverityOrdered(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteReviewQueueJSON(&buf, sampleReviewEntries()))

	var decoded []ticket.ReviewQueueEntry
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, ticket.SeverityCritical, decoded[0].Severity)
	assert.Equal(t, ticket.SeverityWarning, decoded[2].Severity)
}

func TestSeverityCounts(t *testing.T) {
	counts := SeverityCounts(sampleReviewEntries())
	assert.Equal(t, 2, counts[ticket.SeverityCritical])
	assert.Equal(t, 1, counts[ticket.SeverityWarning])
	assert.Equal(t, 0, counts[ticket.SeverityInfo])
}

func TestMissingManifestEntries(t *testing.T) {
	entries := MissingManifestEntries(sampleReviewEntries())
	require.Len(t, entries, 1)
	assert.Equal(t, "p1", entries[0].PageID)
}
