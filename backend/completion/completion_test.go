package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jghoshh/goalpal/backend/models"
)

func checkbox(checked bool) models.SubItem {
	return models.SubItem{ID: "c", Type: models.SubItemCheckbox, IsChecked: checked}
}

func progress(current, target float64) models.SubItem {
	return models.SubItem{ID: "p", Type: models.SubItemProgress, CurrentValue: current, TargetValue: target}
}

func continuous(freq models.ResetFrequency, last time.Time, items ...models.SubItem) *models.Goal {
	return &models.Goal{
		Type:           models.GoalContinuous,
		ResetFrequency: freq,
		LastResetDate:  &last,
		SubItems:       items,
	}
}

func TestIsCompleteEmpty(t *testing.T) {
	assert.False(t, IsComplete(nil))
	assert.False(t, IsComplete([]models.SubItem{}))
}

func TestIsCompleteIsStrictAnd(t *testing.T) {
	cases := []struct {
		name  string
		items []models.SubItem
		want  bool
	}{
		{"all checked", []models.SubItem{checkbox(true), checkbox(true)}, true},
		{"progress at target", []models.SubItem{progress(10, 10)}, true},
		{"progress over target", []models.SubItem{progress(12, 10)}, true},
		{"mixed satisfied", []models.SubItem{checkbox(true), progress(5, 5)}, true},
		{"one unchecked", []models.SubItem{checkbox(true), checkbox(false), progress(5, 5)}, false},
		{"progress short", []models.SubItem{checkbox(true), progress(4.5, 5)}, false},
		{"unknown type", []models.SubItem{{Type: "slider"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsComplete(tc.items))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(nil))
	assert.Equal(t, 33, Percent([]models.SubItem{checkbox(true), checkbox(false), progress(1, 2)}))
	assert.Equal(t, 67, Percent([]models.SubItem{checkbox(true), checkbox(true), progress(1, 2)}))
	assert.Equal(t, 100, Percent([]models.SubItem{checkbox(true)}))
}

func TestShouldResetDaily(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.False(t, ShouldReset(continuous(models.ResetDaily, now.Add(-23*time.Hour)), now))
	assert.True(t, ShouldReset(continuous(models.ResetDaily, now.Add(-25*time.Hour)), now))
	assert.True(t, ShouldReset(continuous(models.ResetDaily, now.Add(-24*time.Hour)), now))
	// Crossing midnight is not enough on its own.
	lateLast := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	earlyNow := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	assert.False(t, ShouldReset(continuous(models.ResetDaily, lateLast), earlyNow))
}

func TestShouldResetWeekly(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.False(t, ShouldReset(continuous(models.ResetWeekly, now.Add(-6*24*time.Hour)), now))
	assert.True(t, ShouldReset(continuous(models.ResetWeekly, now.Add(-7*24*time.Hour)), now))
}

func TestShouldResetMonthlyUsesCalendarBoundary(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	feb1 := time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC)
	assert.True(t, ShouldReset(continuous(models.ResetMonthly, jan31), feb1))

	mar1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mar31 := time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)
	assert.False(t, ShouldReset(continuous(models.ResetMonthly, mar1), mar31))

	sameMonthOtherYear := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.True(t, ShouldReset(continuous(models.ResetMonthly, sameMonthOtherYear), mar31))
}

func TestShouldResetIgnoresDiscreteAndUnset(t *testing.T) {
	now := time.Now()
	old := now.Add(-90 * 24 * time.Hour)

	discrete := continuous(models.ResetDaily, old)
	discrete.Type = models.GoalDiscrete
	assert.False(t, ShouldReset(discrete, now))

	noDate := continuous(models.ResetDaily, old)
	noDate.LastResetDate = nil
	assert.False(t, ShouldReset(noDate, now))

	noFreq := continuous(models.ResetNone, old)
	assert.False(t, ShouldReset(noFreq, now))
}

func TestApplyReset(t *testing.T) {
	done := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	goal := continuous(models.ResetDaily, now.Add(-48*time.Hour),
		models.SubItem{Type: models.SubItemCheckbox, IsChecked: true, CompletedAt: &done},
		progress(7, 7),
	)
	goal.IsCompleted = true

	ApplyReset(goal, now)

	assert.False(t, goal.SubItems[0].IsChecked)
	assert.Nil(t, goal.SubItems[0].CompletedAt)
	assert.Equal(t, float64(0), goal.SubItems[1].CurrentValue)
	assert.Equal(t, float64(7), goal.SubItems[1].TargetValue)
	assert.False(t, goal.IsCompleted)
	require.NotNil(t, goal.LastResetDate)
	assert.True(t, goal.LastResetDate.Equal(now))
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	goal := continuous(models.ResetDaily, now.Add(-30*time.Hour), checkbox(true))
	goal.IsCompleted = true

	got, reset := Reconcile(*goal, now)

	assert.True(t, reset)
	assert.False(t, got.SubItems[0].IsChecked)
	assert.True(t, goal.SubItems[0].IsChecked, "input goal must be left untouched")
	assert.True(t, goal.IsCompleted)

	again, reset := Reconcile(got, now.Add(time.Hour))
	assert.False(t, reset)
	assert.Equal(t, got.LastResetDate, again.LastResetDate)
}
