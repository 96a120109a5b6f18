package export

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

func sampleExportRows() []repository.ExportRow {
	return []repository.ExportRow{
		{
			TicketNumber: "WM-2", Vendor: "WASTE_MANAGEMENT", TicketDate: time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC),
			Material: "CLASS_2_CONTAMINATED", MaterialClass: "CONTAMINATED", TicketType: "EXPORT",
			Source: "PODIUM", Destination: "LEWISVILLE", Quantity: decimal.NewFromFloat(5), QuantityUnit: "TONS",
			ManifestNumber: "WM-MAN-2", FileID: "file-2", FilePage: 1,
		},
		{
			TicketNumber: "WM-1", Vendor: "WASTE_MANAGEMENT", TicketDate: time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
			Material: "CLASS_2_CONTAMINATED", MaterialClass: "CONTAMINATED", TicketType: "EXPORT",
			Source: "PODIUM", Destination: "LEWISVILLE", Quantity: decimal.NewFromFloat(12.5), QuantityUnit: "TONS",
			ManifestNumber: "WM-MAN-1", FileID: "file-1", FilePage: 1,
		},
		{
			TicketNumber: "SPG-1", Vendor: "SPG", TicketDate: time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
			Material: "NON_CONTAMINATED", MaterialClass: "CLEAN", TicketType: "EXPORT",
			Source: "SPG", Destination: "LANDFILL", Quantity: decimal.NewFromFloat(8), QuantityUnit: "TONS",
			FileID: "file-3", FilePage: 2,
		},
	}
}

func TestWriteInvoiceCSVSortsByVendorDateTicket(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteInvoiceCSV(&buf, sampleExportRows()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ticket_number|vendor|date|material|quantity|units|truck_number|file_ref", lines[0])
	assert.Contains(t, lines[1], "SPG-1|SPG")
	assert.Contains(t, lines[2], "WM-1|WASTE_MANAGEMENT")
	assert.Contains(t, lines[3], "WM-2|WASTE_MANAGEMENT")
	assert.Contains(t, lines[2], "12.5")
}

func TestSummarizeByVendor(t *testing.T) {
	summaries := SummarizeByVendor(sampleExportRows())
	require.Len(t, summaries, 2)
	assert.Equal(t, "SPG", summaries[0].Vendor)
	assert.Equal(t, 1, summaries[0].TicketCount)
	assert.Equal(t, "WASTE_MANAGEMENT", summaries[1].Vendor)
	assert.Equal(t, 2, summaries[1].TicketCount)
	assert.Equal(t, "17.5", summaries[1].TotalQuantity)
}

func TestSplitByVendor(t *testing.T) {
	split := SplitByVendor(sampleExportRows())
	assert.Len(t, split["WASTE_MANAGEMENT"], 2)
	assert.Len(t, split["SPG"], 1)
}
