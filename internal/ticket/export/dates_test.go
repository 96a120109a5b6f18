package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobWeekMatchesReferenceExample(t *testing.T) {
	ticketDate := time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)
	jobStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Week 16 - (End 10/20/24)", JobWeek(ticketDate, jobStart))
}

func TestJobMonthMatchesReferenceExample(t *testing.T) {
	ticketDate := time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)
	jobStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "004 - October 24", JobMonth(ticketDate, jobStart))
}

func TestDayNameMatchesReferenceExample(t *testing.T) {
	assert.Equal(t, "Thu", DayName(time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)))
}

func TestComputeJobMetrics(t *testing.T) {
	m := ComputeJobMetrics(time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC), DefaultJobStart)
	assert.Equal(t, "Thu", m.Day)
	assert.Equal(t, "Week 16 - (End 10/20/24)", m.JobWeek)
	assert.Equal(t, "004 - October 24", m.JobMonth)
}
