package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	candidate *Candidate
	err       error
}

func (s stubFinder) FindEarliestInWindow(context.Context, string, *int64, time.Time, time.Time) (*Candidate, error) {
	return s.candidate, s.err
}

func TestCheckDuplicateNoneFound(t *testing.T) {
	d := New(stubFinder{}, 0)
	result, err := d.CheckDuplicate(context.Background(), "WM-12345678", nil, time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
}

func TestCheckDuplicateKnownVendorConfidence(t *testing.T) {
	original := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	d := New(stubFinder{candidate: &Candidate{TicketID: 7, TicketDate: original, FileID: "f1"}}, 0)
	vendorID := int64(3)
	result, err := d.CheckDuplicate(context.Background(), "WM-12345678", &vendorID, time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 46, result.DaysApart)
}

func TestCheckDuplicateUnknownVendorLowerConfidence(t *testing.T) {
	original := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	d := New(stubFinder{candidate: &Candidate{TicketID: 1, TicketDate: original, FileID: "f1"}}, 0)
	result, err := d.CheckDuplicate(context.Background(), "WM-12345678", nil, time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0.85, result.Confidence)
}

func TestDefaultWindowDays(t *testing.T) {
	d := New(stubFinder{}, 0)
	assert.Equal(t, DefaultWindowDays, d.windowDays)
}

func TestComputeStatistics(t *testing.T) {
	stats := ComputeStatistics(200, 20, 120)
	assert.Equal(t, 180, stats.UniqueTickets)
	assert.InDelta(t, 0.1, stats.DuplicateRate, 1e-9)
}

func TestComputeStatisticsNoTickets(t *testing.T) {
	stats := ComputeStatistics(0, 0, 120)
	assert.Equal(t, 0.0, stats.DuplicateRate)
}
