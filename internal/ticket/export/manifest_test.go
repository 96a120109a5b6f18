package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteManifestLogCSVFiltersToContaminatedOnly(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteManifestLogCSV(&buf, sampleExportRows()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3) // header + WM-1 + WM-2, SPG-1 dropped (clean material)
	assert.Contains(t, lines[1], "WM-1")
	assert.Contains(t, lines[2], "WM-2")
}

func TestMissingManifests(t *testing.T) {
	rows := sampleExportRows()
	rows[0].ManifestNumber = ""
	missing := MissingManifests(rows)
	require.Len(t, missing, 1)
	assert.Equal(t, "WM-2", missing[0].TicketNumber)
}

func TestCheckDuplicateManifests(t *testing.T) {
	rows := sampleExportRows()
	rows[0].ManifestNumber = rows[1].ManifestNumber // force a reused manifest number
	dups := CheckDuplicateManifests(rows)
	require.Len(t, dups, 1)
	assert.Equal(t, rows[1].ManifestNumber, dups[0].ManifestNumber)
	assert.ElementsMatch(t, []string{"WM-1", "WM-2"}, dups[0].TicketNumbers)
}

func TestSummarizeManifestsByMonth(t *testing.T) {
	summaries := SummarizeManifestsByMonth(sampleExportRows())
	require.Len(t, summaries, 1)
	assert.Equal(t, "2024-10", summaries[0].Month)
	assert.Equal(t, 2, summaries[0].LoadCount)
	assert.Equal(t, 2, summaries[0].ManifestCount)
}
