package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// summaryFetchLimit bounds concurrent item fetches when summarizing lists.
const summaryFetchLimit = 4

// ListsList shows every list the user can see with its completion summary.
func (r *Runner) ListsList(ctx context.Context, cmd *cli.Command) error {
	client, err := r.authed()
	if err != nil {
		return err
	}

	lists, err := client.ListLists(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch lists: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryFetchLimit)
	for i := range lists {
		g.Go(func() error {
			items, err := client.ListItems(gctx, lists[i].ID)
			if err != nil {
				return fmt.Errorf("failed to fetch todos of list %d: %w", lists[i].ID, err)
			}
			lists[i].Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]listSummary, len(lists))
		for i, l := range lists {
			out[i] = listSummary{List: l, Summary: l.CompletionSummary()}
		}
		return r.writeJSON(out, true)
	}

	if len(lists) == 0 {
		return r.writePlain("No lists yet. Create one with 'tdx lists create <name>'\n")
	}

	active := r.state.ActiveList()
	viewer := client.Session().UserID
	for _, l := range lists {
		marker := " "
		if l.ID == active {
			marker = "*"
		}
		owner := ""
		if l.Author.ID != viewer {
			owner = fmt.Sprintf(" (by %s)", l.Author.Username)
		}
		r.writePlain("%s %4d  %s%s  [%s]  %s\n", marker, l.ID, l.Name, owner, l.Role, l.CompletionSummary())
	}
	return nil
}

type listSummary struct {
	models.List
	Summary string `json:"summary"`
}

// ListsShow prints a list with its description, members and todos.
func (r *Runner) ListsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	list, err := loadList(ctx, client, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			models.List
			Members []models.Member `json:"members"`
			Items   []models.Item   `json:"items"`
		}{list, list.Members, list.Items}, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s  #%d", list.Name, list.ID))
	if desc := formatter.RenderMarkdown(list.Description, r.markdownStyle(), 72); desc != "" {
		r.writePlain("%s\n", desc)
	}
	r.writePlain("Author:  %s\n", list.Author.Username)
	r.writePlain("Role:    %s\n", list.Role)
	r.writePlain("Members: %s\n", formatter.MemberSummary(list.Members))
	r.writePlain("Todos:   %s\n\n", list.CompletionSummary())

	return r.writeItems(list)
}

// ListsCreate creates a list owned by the current user.
func (r *Runner) ListsCreate(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	list, err := client.CreateList(ctx, models.ListInput{Name: name, Description: cmd.String("description")})
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}
	r.logger.Debug("list created", "list_id", list.ID)

	if cmd.Bool("use") {
		if err := r.state.SetActiveList(list.ID); err != nil {
			return err
		}
	}
	return r.writePlain("✓ Created list %q (#%d)\n", list.Name, list.ID)
}

// ListsUpdate renames a list or changes its description. Unset flags keep their current values.
func (r *Runner) ListsUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	if !cmd.IsSet("name") && !cmd.IsSet("description") {
		return fmt.Errorf("%w: --name or --description", shared.ErrMissingArgument)
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	current, err := client.GetList(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch list: %w", err)
	}

	in := models.ListInput{Name: current.Name, Description: current.Description}
	if cmd.IsSet("name") {
		in.Name = cmd.String("name")
	}
	if cmd.IsSet("description") {
		in.Description = cmd.String("description")
	}

	updated, err := client.UpdateList(ctx, id, in)
	if err != nil {
		return fmt.Errorf("failed to update list: %w", err)
	}
	return r.writePlain("✓ Updated list %q (#%d)\n", updated.Name, updated.ID)
}

// ListsDelete deletes a list. Shared lists, lists with todos and lists owned by someone else need --force.
func (r *Runner) ListsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	list, err := loadList(ctx, client, id)
	if err != nil {
		return err
	}

	if list.NeedsDeleteConfirmation(client.Session().UserID) && !cmd.Bool("force") {
		return fmt.Errorf("%w: %q has %s and %d member(s); pass --force to delete it",
			shared.ErrInvalidArgument, list.Name, list.CompletionSummary(), len(list.Members))
	}

	if err := client.DeleteList(ctx, id); err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}

	if r.state.ActiveList() == id {
		if err := r.state.SetActiveList(0); err != nil {
			r.logger.Warn("failed to reset active list", "error", err)
		}
	}
	return r.writePlain("✓ Deleted list %q (#%d)\n", list.Name, list.ID)
}

// ListsClone copies a list with its todos into a new list owned by the current user.
func (r *Runner) ListsClone(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	name := cmd.String("name")
	if name == "" {
		src, err := client.GetList(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch list: %w", err)
		}
		name = src.Name + " (cloned)"
	}

	clone, err := client.CloneList(ctx, id, name)
	if err != nil {
		return fmt.Errorf("failed to clone list: %w", err)
	}
	return r.writePlain("✓ Cloned into %q (#%d)\n", clone.Name, clone.ID)
}

// ListsShare adds users to a list with a role.
func (r *Runner) ListsShare(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	role, err := resolveRole(ctx, client, cmd.String("role"))
	if err != nil {
		return err
	}

	var userIDs []int
	var names []string
	for _, ref := range cmd.StringSlice("user") {
		u, err := resolveUser(ctx, client, ref)
		if err != nil {
			return err
		}
		userIDs = append(userIDs, u.ID)
		names = append(names, u.Username)
	}

	if err := client.ShareList(ctx, id, models.ShareRequest{UserIDs: userIDs, RoleID: role.ID}); err != nil {
		return fmt.Errorf("failed to share list: %w", err)
	}
	return r.writePlain("✓ Shared list #%d with %s as %s\n", id, strings.Join(names, ", "), role.Name)
}

// ListsMembers shows a list's members, including the owner.
func (r *Runner) ListsMembers(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	var (
		list    *models.List
		members []models.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		list, err = client.GetList(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		members, err = client.ListMembers(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to fetch members: %w", err)
	}

	members = models.EffectiveMembers(list.Author, members)
	if cmd.Bool("json") {
		return r.writeJSON(members, true)
	}
	for _, m := range members {
		r.writePlain("%4d  %-20s %s\n", m.User.ID, m.User.Username, m.Role.Name)
	}
	return nil
}

// ListsRoles shows the roles the server knows about.
func (r *Runner) ListsRoles(ctx context.Context, cmd *cli.Command) error {
	client, err := r.authed()
	if err != nil {
		return err
	}

	roles, err := client.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch roles: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(roles, true)
	}
	for _, role := range roles {
		r.writePlain("%4d  %s\n", role.ID, role.Name)
	}
	return nil
}

// ListsUse makes a list the active list.
func (r *Runner) ListsUse(ctx context.Context, cmd *cli.Command) error {
	raw, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	id, err := parseID("id", raw)
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	list, err := client.GetList(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch list: %w", err)
	}
	if err := r.state.SetActiveList(id); err != nil {
		return err
	}
	return r.writePlain("✓ Active list is now %q (#%d)\n", list.Name, list.ID)
}

// ListsExport writes a list as text, Markdown or CSV.
func (r *Runner) ListsExport(ctx context.Context, cmd *cli.Command) error {
	id, err := r.listID(cmd, "id")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	client, err := r.authed()
	if err != nil {
		return err
	}

	list, err := loadList(ctx, client, id)
	if err != nil {
		return err
	}

	if cmd.String("output") == "-" {
		data, err := formatter.Export(list, format)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	path, err := formatter.WriteExport(list, format, cmd.String("output"))
	if err != nil {
		return err
	}
	r.logger.Info("exported list", "list_id", id, "format", format, "path", path)
	return r.writePlain("✓ Exported %q to %s\n", list.Name, path)
}

// loadList fetches a list with its effective members and items.
func loadList(ctx context.Context, client *services.Client, id int) (models.List, error) {
	var (
		list    *models.List
		members []models.Member
		items   []models.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		list, err = client.GetList(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		members, err = client.ListMembers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		items, err = client.ListItems(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.List{}, fmt.Errorf("failed to fetch list %d: %w", id, err)
	}

	out := *list
	out.Members = models.EffectiveMembers(list.Author, members)
	out.Items = items
	return out, nil
}

func resolveRole(ctx context.Context, client *services.Client, ref string) (models.Role, error) {
	roles, err := client.ListRoles(ctx)
	if err != nil {
		return models.Role{}, fmt.Errorf("failed to fetch roles: %w", err)
	}

	ref = strings.TrimSpace(ref)
	for _, role := range roles {
		if strings.EqualFold(string(role.Name), ref) || strconv.Itoa(role.ID) == ref {
			return role, nil
		}
	}
	return models.Role{}, fmt.Errorf("%w: unknown role %q", shared.ErrInvalidArgument, ref)
}

func resolveUser(ctx context.Context, client *services.Client, ref string) (models.User, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil && id > 0 {
		return models.User{ID: id, Username: "#" + ref}, nil
	}

	users, err := client.FindUsers(ctx, ref)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to look up user %q: %w", ref, err)
	}
	for _, u := range users {
		if u.Username == ref {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: no user named %q", shared.ErrInvalidArgument, ref)
}
