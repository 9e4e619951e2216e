package cmd

import (
	ishell "github.com/abiosoft/ishell"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/frontend/client"
	"github.com/jghoshh/goalpal/lib/utils"
)

func pickFriend(c *ishell.Context, prompt string) (*models.UserSummary, bool) {
	list, err := client.Friends()
	if err != nil {
		report(err)
		return nil, false
	}
	if len(list) == 0 {
		c.Println("You have no friends yet. Send a request with 'addfriend'.")
		return nil, false
	}
	for i, friend := range list {
		c.Printf("%d. %s <%s>\n", i+1, friend.Name, friend.Email)
	}

	for {
		c.Print(prompt)
		i, err := parseIndex(c.ReadLine(), len(list))
		if err == nil {
			return &list[i], true
		}
		c.Println(err.Error())
	}
}

// pickRequest lists incoming requests and asks for one of them.
func pickRequest(c *ishell.Context, prompt string) (*models.FriendRequestView, bool) {
	list, err := client.IncomingRequests()
	if err != nil {
		report(err)
		return nil, false
	}
	if len(list) == 0 {
		c.Println("No pending friend requests.")
		return nil, false
	}
	for i, req := range list {
		c.Printf("%d. %s\n", i+1, requestLabel(req.Sender))
	}

	for {
		c.Print(prompt)
		i, err := parseIndex(c.ReadLine(), len(list))
		if err == nil {
			return &list[i], true
		}
		c.Println(err.Error())
	}
}

func requestLabel(user *models.UserSummary) string {
	if user == nil {
		return "(deleted user)"
	}
	return user.Name + " <" + user.Email + ">"
}

func friendCommands() []Command {
	return []Command{
		{
			Name: "friends",
			Desc: "List your friends",
			Func: func(c *ishell.Context) {
				list, err := client.Friends()
				if err != nil {
					report(err)
					return
				}
				if len(list) == 0 {
					c.Println("You have no friends yet. Send a request with 'addfriend'.")
					return
				}
				for i, friend := range list {
					c.Printf("%d. %s <%s>\n", i+1, friend.Name, friend.Email)
				}
			},
		},
		{
			Name: "addfriend",
			Desc: "Send a friend request by email",
			Func: func(c *ishell.Context) {
				email := readLine(c, "Friend's Email: ", "Email is not valid.", utils.ValidateEmail)
				if err := client.SendFriendRequest(email); err != nil {
					report(err)
					return
				}
				c.Println("Friend request sent.")
			},
		},
		{
			Name: "requests",
			Desc: "Show pending friend requests",
			Func: func(c *ishell.Context) {
				incoming, err := client.IncomingRequests()
				if err != nil {
					report(err)
					return
				}
				sent, err := client.SentRequests()
				if err != nil {
					report(err)
					return
				}
				c.Println("Incoming:")
				for _, req := range incoming {
					c.Println("  |-- " + requestLabel(req.Sender))
				}
				c.Println("Sent:")
				for _, req := range sent {
					c.Println("  |-- " + requestLabel(req.Recipient))
				}
			},
		},
		{
			Name: "accept",
			Desc: "Accept a friend request",
			Func: func(c *ishell.Context) {
				req, ok := pickRequest(c, "Request to accept: ")
				if !ok {
					return
				}
				if err := client.AcceptRequest(req.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Printf("You are now friends with %s.\n", requestLabel(req.Sender))
			},
		},
		{
			Name: "reject",
			Desc: "Reject a friend request",
			Func: func(c *ishell.Context) {
				req, ok := pickRequest(c, "Request to reject: ")
				if !ok {
					return
				}
				if err := client.RejectRequest(req.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Println("Friend request rejected.")
			},
		},
		{
			Name: "unfriend",
			Desc: "Remove a friend",
			Func: func(c *ishell.Context) {
				friend, ok := pickFriend(c, "Friend to remove: ")
				if !ok || !confirm(c, "Remove "+friend.Name+" from your friends?") {
					return
				}
				if err := client.RemoveFriend(friend.ID.Hex()); err != nil {
					report(err)
					return
				}
				c.Println("Friend removed.")
			},
		},
	}
}
