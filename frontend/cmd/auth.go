package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"

	"github.com/jghoshh/goalpal/frontend/client"
	"github.com/jghoshh/goalpal/lib/utils"
)

// guestCommands is a slice of Command structures containing commands that are available to users who have not logged in.
var guestCommands []Command

// userCommands is a slice of Command structures containing commands that are available only to logged in users.
var userCommands []Command

// commonCommands is a slice of Command structures containing commands that are available to all users, regardless of their login status.
var commonCommands []Command

// loggedIn is a boolean variable that indicates whether a user is currently logged in. It is true when a user is logged in and false otherwise.
var loggedIn bool

// shell represents an instance of the interactive shell used for this application. Users can interact with the application by executing commands on this shell.
var shell *ishell.Shell

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                  // Name is the name of the command.
	Desc string                  // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

// signedIn swaps the guest commands for the user commands.
func signedIn() {
	loggedIn = true
	for _, command := range guestCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, userCommands)
}

// signedOut swaps the user commands for the guest commands.
func signedOut() {
	loggedIn = false
	for _, command := range userCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, guestCommands)
}

// report prints err. An expired session also returns the shell to guest mode.
func report(err error) {
	if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, client.ErrNotSignedIn) {
		utils.PrintError("Session expired, please sign in again by typing 'signin' in the terminal.")
		signedOut()
		return
	}
	utils.PrintError(err.Error())
}

// readLine prompts until valid accepts the input.
func readLine(c *ishell.Context, prompt, invalid string, valid func(string) bool) string {
	for {
		c.Print(prompt)
		value := strings.TrimSpace(c.ReadLine())
		if valid(value) {
			return value
		}
		c.Println(invalid)
	}
}

func notEmpty(s string) bool { return s != "" }

// confirm asks a yes/no question until it gets an answer.
func confirm(c *ishell.Context, question string) bool {
	for {
		c.Print(question + " (yes/no): ")
		switch strings.ToLower(strings.TrimSpace(c.ReadLine())) {
		case "yes":
			return true
		case "no":
			return false
		}
		c.Println("Invalid response. Please type 'yes' or 'no'.")
	}
}

// InitAuthCmd is a function that initializes the shell commands.
// It initializes the shell and sets up the commands for guest and user scenarios.
func InitAuthCmd() {

	// Initialize shell
	shell = ishell.New()

	// Define the commands available to a guest user (not signed in)
	guestCommands = []Command{
		{
			Name: "signin",
			Desc: "Sign in to your account",
			Func: func(c *ishell.Context) {
				email := readLine(c, "Enter Email: ", "Email is not valid.", utils.ValidateEmail)

				var password string
				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if len(password) > 0 {
						break
					}
					c.Println("Password cannot be empty.")
				}

				user, err := client.SignIn(email, password)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Welcome back, %s. You are now signed in.\n", user.Name)
				signedIn()
			},
		},
		{
			Name: "signup",
			Desc: "Sign up for a new account",
			Func: func(c *ishell.Context) {
				name := readLine(c, "Enter Name: ", "Name cannot be empty.", notEmpty)
				email := readLine(c, "Enter Email: ", "Email is not valid.", utils.ValidateEmail)

				var password string
				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if utils.ValidatePassword(password) {
						c.Print("Confirm Password: ")
						confirmPassword := c.ReadPassword()

						if password == confirmPassword {
							break
						}
						c.Println()
						c.Println("Passwords do not match. Please try again.")
						c.Println()
					} else {
						c.Println()
						c.Println("Password must be at least 8 characters and contain both letters and numbers.")
						c.Println()
					}
				}

				if _, err := client.SignUp(name, email, password); err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Account created successfully. You are now signed in.")
				signedIn()
			},
		},
	}

	// Define the commands available to a signed in user
	userCommands = []Command{
		{
			Name: "me",
			Desc: "Show your account",
			Func: func(c *ishell.Context) {
				user, err := client.Me()
				if err != nil {
					report(err)
					return
				}
				c.Printf("%s <%s>, %d friends, member since %s\n", user.Name, user.Email, len(user.Friends), user.CreatedAt.Format("2006-01-02"))
			},
		},
		{
			Name: "pushtoken",
			Desc: "Register a device push token for notifications",
			Func: func(c *ishell.Context) {
				token := readLine(c, "Enter Push Token: ", "Push token cannot be empty.", notEmpty)
				if err := client.RegisterPushToken(token); err != nil {
					report(err)
					return
				}
				c.Println("Push token registered.")
			},
		},
		{
			Name: "signout",
			Desc: "Sign out from your account",
			Func: func(c *ishell.Context) {
				if err := client.SignOut(); err != nil {
					utils.PrintError(err.Error())
				}
				c.Println("You are now signed out.")
				signedOut()
			},
		},
		{
			Name: "deletemyacc",
			Desc: "Delete your account",
			Func: func(c *ishell.Context) {
				if !confirm(c, "Are you sure you want to delete your account?") {
					return
				}
				deleted, err := client.DeleteAccount()
				if err != nil {
					report(err)
					return
				}
				c.Printf("Account deleted: %d goals, %d friend connections, %d friend requests removed.\n",
					deleted.Goals, deleted.FriendConnections, deleted.FriendRequests)
				signedOut()
			},
		},
	}
	userCommands = append(userCommands, goalCommands()...)
	userCommands = append(userCommands, friendCommands()...)

	// Define common commands that are always available, regardless of login state
	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			if loggedIn {
				for _, command := range userCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			} else {
				for _, command := range guestCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			}
			for _, command := range commonCommands {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

// addCommands is a helper function that adds the given commands to the shell.
//
// It accepts two arguments:
// - shell: The ishell shell where the commands will be added.
// - commands: A slice of Command structs to be added to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: "Command: " + command.Name,
			Func: command.Func,
		})
	}
}

// Execute is the main function that executes the shell.
// It welcomes the user, adds common and guest or user commands to the shell, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("GoalPal", "basic", true).Print()
	shell.Println("Welcome to GoalPal -- track goals with friends. Type 'help' to see a list of commands.")

	addCommands(shell, commonCommands)

	token, err := client.IsUserAuthenticated()
	if err == nil && token != "" {
		loggedIn = true
		addCommands(shell, userCommands)
	} else {
		addCommands(shell, guestCommands)
	}

	shell.Run()
}
