package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[--------------------] 0%", progressBar(0))
	assert.Equal(t, "[##########----------] 50%", progressBar(50))
	assert.Equal(t, "[####################] 100%", progressBar(140))
}

func TestFormatGoal(t *testing.T) {
	goal := models.Goal{
		Title:          "Run",
		Type:           models.GoalContinuous,
		ResetFrequency: models.ResetWeekly,
		IsCompleted:    true,
		Progress:       100,
		SharedWith:     []primitive.ObjectID{primitive.NewObjectID()},
		SubItems: []models.SubItem{
			{Title: "Monday", Type: models.SubItemCheckbox, IsChecked: true},
			{Title: "Distance", Type: models.SubItemProgress, CurrentValue: 5, TargetValue: 5},
		},
	}
	want := "2. [x] Run [####################] 100% (resets weekly) shared with 1" +
		"\n     2.1 [x] Monday" +
		"\n     2.2 Distance 5/5"
	assert.Equal(t, want, formatGoal(2, goal))
}

func TestParseIndex(t *testing.T) {
	i, err := parseIndex(" 2 ", 3)
	assert.NoError(t, err)
	assert.Equal(t, 1, i)

	for _, input := range []string{"0", "4", "two", ""} {
		_, err := parseIndex(input, 3)
		assert.Error(t, err, input)
	}
}

func TestMoveID(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	assert.Equal(t, []string{"c", "a", "b", "d"}, moveID(ids, 2, 0))
	assert.Equal(t, []string{"b", "c", "d", "a"}, moveID(ids, 0, 3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, moveID(ids, 1, 1))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids, "input is not modified")
}

func TestSplitTitles(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, splitTitles(" one, ,two ,"))
	assert.Nil(t, splitTitles("  "))
}
