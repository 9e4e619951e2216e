package cmd

import (
	"strings"

	ishell "github.com/abiosoft/ishell"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/frontend/client"
)

// pickGoal lists the caller's goals and asks for one of them.
func pickGoal(c *ishell.Context, prompt string) (*models.Goal, []models.Goal, bool) {
	list, err := client.Goals()
	if err != nil {
		report(err)
		return nil, nil, false
	}
	if len(list) == 0 {
		c.Println("You have no goals yet. Create one with 'newgoal'.")
		return nil, nil, false
	}
	for i, goal := range list {
		c.Println(formatGoal(i+1, goal))
	}

	for {
		c.Print(prompt)
		i, err := parseIndex(c.ReadLine(), len(list))
		if err == nil {
			return &list[i], list, true
		}
		c.Println(err.Error())
	}
}

func goalCommands() []Command {
	return []Command{
		{
			Name: "goals",
			Desc: "List your goals and the goals shared with you",
			Func: func(c *ishell.Context) {
				list, err := client.Goals()
				if err != nil {
					report(err)
					return
				}
				if len(list) == 0 {
					c.Println("You have no goals yet. Create one with 'newgoal'.")
					return
				}
				for i, goal := range list {
					c.Println(formatGoal(i+1, goal))
				}
			},
		},
		{
			Name: "newgoal",
			Desc: "Create a new goal",
			Func: func(c *ishell.Context) {
				in := goals.CreateInput{
					Title: readLine(c, "Enter Title: ", "Title cannot be empty.", notEmpty),
					Type:  models.GoalDiscrete,
				}

				if confirm(c, "Should this goal reset on a schedule?") {
					in.Type = models.GoalContinuous
					frequency := readLine(c, "Reset frequency (daily/weekly/monthly): ", "Please type daily, weekly or monthly.", func(s string) bool {
						return models.ResetFrequency(strings.ToLower(s)).Valid() && s != ""
					})
					in.ResetFrequency = models.ResetFrequency(strings.ToLower(frequency))
				}

				c.Print("Enter sub-items, separated by commas (optional): ")
				for _, title := range splitTitles(c.ReadLine()) {
					in.SubItems = append(in.SubItems, goals.SubItemInput{Title: title, Type: models.SubItemCheckbox})
				}

				goal, err := client.CreateGoal(in)
				if err != nil {
					report(err)
					return
				}
				c.Println("Goal created:")
				c.Println(formatGoal(goal.Order+1, *goal))
			},
		},
		{
			Name: "toggle",
			Desc: "Check or uncheck a sub-item of a goal",
			Func: func(c *ishell.Context) {
				goal, _, ok := pickGoal(c, "Goal number: ")
				if !ok {
					return
				}
				if len(goal.SubItems) == 0 {
					c.Println("This goal has no sub-items.")
					return
				}

				var index int
				for {
					c.Print("Sub-item number: ")
					i, err := parseIndex(c.ReadLine(), len(goal.SubItems))
					if err == nil {
						index = i
						break
					}
					c.Println(err.Error())
				}

				updated, err := client.ToggleSubItem(goal.ID.Hex(), goal.SubItems[index].ID)
				if err != nil {
					report(err)
					return
				}
				if updated.IsCompleted && !goal.IsCompleted {
					c.Println("Goal completed!")
				}
				c.Println(progressBar(updated.Progress))
			},
		},
		{
			Name: "movegoal",
			Desc: "Move one of your goals to another position",
			Func: func(c *ishell.Context) {
				goal, list, ok := pickGoal(c, "Goal to move: ")
				if !ok {
					return
				}

				ids := make([]string, 0, len(list))
				from := 0
				for _, g := range list {
					if g.UserID != goal.UserID {
						continue
					}
					if g.ID == goal.ID {
						from = len(ids)
					}
					ids = append(ids, g.ID.Hex())
				}

				var to int
				for {
					c.Print("New position: ")
					i, err := parseIndex(c.ReadLine(), len(ids))
					if err == nil {
						to = i
						break
					}
					c.Println(err.Error())
				}

				if err := client.ReorderGoals(moveID(ids, from, to)); err != nil {
					report(err)
					return
				}
				c.Println("Goal moved.")
			},
		},
		{
			Name: "deletegoal",
			Desc: "Delete one of your goals",
			Func: func(c *ishell.Context) {
				goal, _, ok := pickGoal(c, "Goal to delete: ")
				if !ok || !confirm(c, "Delete '"+goal.Title+"'?") {
					return
				}
				if err := client.DeleteGoal(goal.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Println("Goal deleted.")
			},
		},
		{
			Name: "share",
			Desc: "Share one of your goals with a friend",
			Func: func(c *ishell.Context) {
				goal, _, ok := pickGoal(c, "Goal to share: ")
				if !ok {
					return
				}
				friend, ok := pickFriend(c, "Friend to share with: ")
				if !ok {
					return
				}
				if err := client.ShareGoal(goal.ID.Hex(), friend.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Printf("'%s' is now shared with %s.\n", goal.Title, friend.Name)
			},
		},
		{
			Name: "unshare",
			Desc: "Stop sharing one of your goals with a friend",
			Func: func(c *ishell.Context) {
				goal, _, ok := pickGoal(c, "Goal to unshare: ")
				if !ok {
					return
				}
				friend, ok := pickFriend(c, "Friend to remove: ")
				if !ok {
					return
				}
				if err := client.UnshareGoal(goal.ID.Hex(), friend.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Printf("'%s' is no longer shared with %s.\n", goal.Title, friend.Name)
			},
		},
		{
			Name: "remind",
			Desc: "Send the daily reminder now",
			Func: func(c *ishell.Context) {
				if err := client.TestNotification(); err != nil {
					report(err)
					return
				}
				c.Println("Reminder sent to every registered device.")
			},
		},
	}
}
