package service

import (
	"time"

	"github.com/smallbiznis/ledgerbook/internal/recurring/domain"
)

// NextBillingDate advances current by count intervals. Monthly and yearly
// schedules land on dayOfMonth, clamped to the last day of shorter months;
// without an anchor the day of current is kept.
func NextBillingDate(current time.Time, interval domain.BillingInterval, count int, dayOfMonth *int) (time.Time, error) {
	if count < 1 {
		return time.Time{}, domain.ErrInvalidCount
	}
	switch interval {
	case domain.IntervalDay:
		return current.AddDate(0, 0, count), nil
	case domain.IntervalWeek:
		return current.AddDate(0, 0, 7*count), nil
	case domain.IntervalMonth:
		return addMonths(current, count, dayOfMonth), nil
	case domain.IntervalYear:
		return addMonths(current, 12*count, dayOfMonth), nil
	default:
		return time.Time{}, domain.ErrInvalidInterval
	}
}

func addMonths(current time.Time, months int, dayOfMonth *int) time.Time {
	day := current.Day()
	if dayOfMonth != nil {
		day = *dayOfMonth
	}
	// Day 1 of the target month never overflows, so AddDate cannot roll over.
	firstOfMonth := time.Date(current.Year(), current.Month(), 1,
		current.Hour(), current.Minute(), current.Second(), current.Nanosecond(), current.Location())
	target := firstOfMonth.AddDate(0, months, 0)
	if last := daysIn(target.Year(), target.Month(), target.Location()); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// firstBillingDate is the first occurrence on or after start honoring the
// day-of-month anchor.
func firstBillingDate(start time.Time, interval domain.BillingInterval, dayOfMonth *int) time.Time {
	if dayOfMonth == nil || (interval != domain.IntervalMonth && interval != domain.IntervalYear) {
		return start
	}
	candidate := addMonths(start, 0, dayOfMonth)
	if candidate.Before(start) {
		candidate = addMonths(start, 1, dayOfMonth)
	}
	return candidate
}
