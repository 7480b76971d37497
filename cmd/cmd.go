// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func listFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "list",
		Aliases: []string{"l"},
		Usage:   "List ID (defaults to the active list)",
	}
}

// setupCommand handles setup operations for configuration and the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Usage:   "Where to write the configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles account and session operations
func authCommand(r *Runner) *cli.Command {
	credentialFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password (prompted when omitted)",
			},
		}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage your account and session",
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Sign in and store the session locally",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags:     credentialFlags(),
				Action:    r.AuthLogin,
			},
			{
				Name:      "register",
				Usage:     "Create an account and sign in",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags:     credentialFlags(),
				Action:    r.AuthRegister,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session and active list",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show the signed-in user and token expiry",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "refresh", Usage: "Refresh the access token first"},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// listsCommand handles todo list operations
func listsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lists",
		Aliases: []string{"list", "ls"},
		Usage:   "Todo list operations",
		Commands: []*cli.Command{
			{
				Name:   "ls",
				Usage:  "Show lists you own or are a member of",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.ListsList,
			},
			{
				Name:      "show",
				Usage:     "Show a list with its members and todos",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.ListsShow,
			},
			{
				Name:      "create",
				Usage:     "Create a list",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "List description"},
					&cli.BoolFlag{Name: "use", Usage: "Make the new list the active list"},
				},
				Action: r.ListsCreate,
			},
			{
				Name:      "update",
				Usage:     "Rename a list or change its description (owner only)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "New name"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "New description"},
				},
				Action: r.ListsUpdate,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a list",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Delete shared or non-empty lists"},
				},
				Action: r.ListsDelete,
			},
			{
				Name:      "clone",
				Usage:     "Copy a list and its todos",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name of the copy (default: \"<name> (cloned)\")"},
				},
				Action: r.ListsClone,
			},
			{
				Name:      "share",
				Usage:     "Add users to a list",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Username or user ID (repeatable)",
						Required: true,
					},
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Role name or ID", Value: "editor"},
				},
				Action: r.ListsShare,
			},
			{
				Name:      "members",
				Usage:     "Show the members of a list",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.ListsMembers,
			},
			{
				Name:   "roles",
				Usage:  "Show the roles a member can have",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.ListsRoles,
			},
			{
				Name:      "use",
				Usage:     "Set the active list used when no list is given",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.ListsUse,
			},
			{
				Name:      "export",
				Usage:     "Export a list as text, Markdown or CSV",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "text, markdown or csv", Value: "text"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path (\"-\" for stdout)"},
				},
				Action: r.ListsExport,
			},
		},
	}
}

// itemsCommand handles todo item operations on one list
func itemsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "todos",
		Aliases: []string{"todo", "items"},
		Usage:   "Todo item operations",
		Commands: []*cli.Command{
			{
				Name:   "ls",
				Usage:  "Show the todos of a list",
				Flags:  []cli.Flag{listFlag(), jsonFlag()},
				Action: r.ItemsList,
			},
			{
				Name:      "add",
				Usage:     "Add a todo",
				Arguments: []cli.Argument{&cli.StringArg{Name: "description"}},
				Flags:     []cli.Flag{listFlag()},
				Action:    r.ItemsAdd,
			},
			{
				Name:  "edit",
				Usage: "Change a todo's description",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "item"},
					&cli.StringArg{Name: "description"},
				},
				Flags:  []cli.Flag{listFlag()},
				Action: r.ItemsEdit,
			},
			{
				Name:      "toggle",
				Usage:     "Flip a todo between done and not done",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{listFlag()},
				Action:    r.ItemsToggle,
			},
			{
				Name:      "rm",
				Aliases:   []string{"delete"},
				Usage:     "Delete a todo",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{listFlag()},
				Action:    r.ItemsDelete,
			},
			{
				Name:      "clone",
				Usage:     "Duplicate a todo",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{listFlag()},
				Action:    r.ItemsClone,
			},
		},
	}
}

// usersCommand handles user lookup
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "User lookup",
		Commands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "Search users by username",
				Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.UsersFind,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive TUI",
		Action:  r.TUI,
	}
}
