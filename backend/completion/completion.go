// Package completion derives goal completion from sub-items and applies the
// periodic reset of continuous goals. Everything here is free of I/O.
package completion

import (
	"math"
	"time"

	"github.com/jghoshh/goalpal/backend/models"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// IsSatisfied reports whether a single sub-item counts as done.
// A checkbox is done when checked, a progress item when its current value reaches the target.
func IsSatisfied(item models.SubItem) bool {
	switch item.Type {
	case models.SubItemCheckbox:
		return item.IsChecked
	case models.SubItemProgress:
		return item.CurrentValue >= item.TargetValue
	}
	return false
}

// IsComplete reports whether every sub-item is satisfied. An empty list is never complete.
func IsComplete(items []models.SubItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !IsSatisfied(item) {
			return false
		}
	}
	return true
}

// Percent returns the share of satisfied sub-items, rounded to a whole percentage.
// It is for display only and never gates completion.
func Percent(items []models.SubItem) int {
	if len(items) == 0 {
		return 0
	}
	done := 0
	for _, item := range items {
		if IsSatisfied(item) {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(items))))
}

// ShouldReset reports whether a continuous goal is due for a reset at now.
//
// Daily and weekly frequencies use elapsed time since the last reset (a full 24h or 7*24h),
// while monthly compares calendar month and year in now's location.
func ShouldReset(goal *models.Goal, now time.Time) bool {
	if goal.Type != models.GoalContinuous || goal.LastResetDate == nil {
		return false
	}
	last := *goal.LastResetDate

	switch goal.ResetFrequency {
	case models.ResetDaily:
		return now.Sub(last) >= day
	case models.ResetWeekly:
		return now.Sub(last) >= week
	case models.ResetMonthly:
		last = last.In(now.Location())
		return now.Month() != last.Month() || now.Year() != last.Year()
	}
	return false
}

// ApplyReset returns every sub-item to its initial state and stamps the reset time.
// It does not check ShouldReset.
func ApplyReset(goal *models.Goal, now time.Time) {
	for i := range goal.SubItems {
		item := &goal.SubItems[i]
		switch item.Type {
		case models.SubItemCheckbox:
			item.IsChecked = false
			item.CompletedAt = nil
		case models.SubItemProgress:
			item.CurrentValue = 0
		}
	}
	resetAt := now
	goal.LastResetDate = &resetAt
	goal.IsCompleted = false
}

// Reconcile returns goal as it should be observed at now, resetting it if it is due.
// The input is not modified. The boolean reports whether a reset happened and the
// result therefore needs to be persisted.
func Reconcile(goal models.Goal, now time.Time) (models.Goal, bool) {
	out := goal.Clone()
	if !ShouldReset(&out, now) {
		return out, false
	}
	ApplyReset(&out, now)
	return out, true
}
