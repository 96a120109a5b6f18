package export

import (
	"fmt"
	"time"
)

// JobWeek formats ticketDate's job-week label: "Week 16 - (End 10/20/24)".
// Job weeks run Monday-Sunday; week 1 starts on the Monday of the week
// containing jobStart. Exact port of calculate_job_week.
func JobWeek(ticketDate, jobStart time.Time) string {
	daysSinceMonday := int(jobStart.Weekday()+6) % 7 // Go's Weekday: Sunday=0; want Monday=0
	week1Start := jobStart.AddDate(0, 0, -daysSinceMonday)

	daysDiff := int(ticketDate.Sub(week1Start).Hours() / 24)
	weekNumber := daysDiff/7 + 1

	daysUntilSunday := 6 - int(ticketDate.Weekday()+6)%7
	weekEnd := ticketDate.AddDate(0, 0, daysUntilSunday)

	return fmt.Sprintf("Week %d - (End %s)", weekNumber, weekEnd.Format("01/02/06"))
}

// JobMonth formats ticketDate's job-month label: "004 - October 24".
// Job months are sequential from jobStart; month 1 contains jobStart.
// Exact port of calculate_job_month.
func JobMonth(ticketDate, jobStart time.Time) string {
	monthsDiff := (ticketDate.Year()-jobStart.Year())*12 + int(ticketDate.Month()) - int(jobStart.Month())
	jobMonthNumber := monthsDiff + 1
	return fmt.Sprintf("%03d - %s %s", jobMonthNumber, ticketDate.Format("January"), ticketDate.Format("06"))
}

// DayName returns the abbreviated weekday name (Mon, Tue, ...), matching
// get_day_name.
func DayName(ticketDate time.Time) string {
	return ticketDate.Format("Mon")
}

// JobMetrics bundles the three date-derived labels the tracking workbook
// needs per ticket, matching calculate_job_metrics.
type JobMetrics struct {
	Day      string
	JobWeek  string
	JobMonth string
}

// DefaultJobStart is the calculate_job_metrics fallback start date for
// project 24-105, kept only as a documented default for callers that
// don't have a Job row's StartDate handy (e.g. ad hoc CLI use).
var DefaultJobStart = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)

// ComputeJobMetrics returns day/job-week/job-month for ticketDate against
// jobStart.
func ComputeJobMetrics(ticketDate, jobStart time.Time) JobMetrics {
	return JobMetrics{
		Day:      DayName(ticketDate),
		JobWeek:  JobWeek(ticketDate, jobStart),
		JobMonth: JobMonth(ticketDate, jobStart),
	}
}
