package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jghoshh/goalpal/backend/models"
)

// progressBar renders percent as a fixed width bar.
func progressBar(percent int) string {
	const width = 20
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "] " + strconv.Itoa(percent) + "%"
}

// formatGoal renders a goal and its sub-items for the goal list. n is the 1-based position shown to the user.
func formatGoal(n int, goal models.Goal) string {
	var b strings.Builder

	status := " "
	if goal.IsCompleted {
		status = "x"
	}
	fmt.Fprintf(&b, "%d. [%s] %s %s", n, status, goal.Title, progressBar(goal.Progress))
	if goal.Type == models.GoalContinuous && goal.ResetFrequency != models.ResetNone {
		fmt.Fprintf(&b, " (resets %s)", goal.ResetFrequency)
	}
	if len(goal.SharedWith) > 0 {
		fmt.Fprintf(&b, " shared with %d", len(goal.SharedWith))
	}

	for i, item := range goal.SubItems {
		switch item.Type {
		case models.SubItemProgress:
			fmt.Fprintf(&b, "\n     %d.%d %s %g/%g", n, i+1, item.Title, item.CurrentValue, item.TargetValue)
		default:
			check := " "
			if item.IsChecked {
				check = "x"
			}
			fmt.Fprintf(&b, "\n     %d.%d [%s] %s", n, i+1, check, item.Title)
		}
	}
	return b.String()
}

// parseIndex parses a 1-based list position entered by the user.
func parseIndex(input string, length int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > length {
		return 0, fmt.Errorf("enter a number between 1 and %d", length)
	}
	return n - 1, nil
}

// moveID returns ids with the element at from moved to position to.
func moveID(ids []string, from, to int) []string {
	out := make([]string, 0, len(ids))
	moved := ids[from]
	for i, id := range ids {
		if i != from {
			out = append(out, id)
		}
	}
	out = append(out, "")
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// splitTitles splits a comma separated list, dropping blanks.
func splitTitles(input string) []string {
	var titles []string
	for _, part := range strings.Split(input, ",") {
		if title := strings.TrimSpace(part); title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}
