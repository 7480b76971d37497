package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/reconcile"
	"github.com/desertthunder/tdx/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListsView ViewState = iota
	DetailView
	ConfirmDeleteView
)

type inputMode int

const (
	modeNone inputMode = iota
	modeNewList
	modeAddItem
	modeEditItem
)

// ListStore is the subset of [services.Client] the lists browser needs.
type ListStore interface {
	ListLists(ctx context.Context) ([]models.List, error)
	CreateList(ctx context.Context, in models.ListInput) (*models.List, error)
	DeleteList(ctx context.Context, id int) error
}

// Opener opens list views. [reconcile.Reconciler] implements it.
type Opener interface {
	Open(ctx context.Context, listID int) (*reconcile.View, error)
}

// ActiveList remembers the last opened list. [state.State] implements it.
type ActiveList interface {
	ActiveList() int
	SetActiveList(id int) error
}

// Options wires a [Model] to its dependencies. Active and Logger may be nil.
type Options struct {
	Lists    ListStore
	Views    Opener
	Active   ActiveList
	ViewerID int
	Logger   *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	opts    Options
	logger  *log.Logger
	view    ViewState
	width   int
	height  int
	lists   list.Model
	loading bool
	spinner spinner.Model

	detail  *reconcile.View
	snap    reconcile.Snapshot
	cursor  int
	mode    inputMode
	input   textinput.Model
	editing int
	draft   string
	saving  bool
	confirm *models.List

	status string
	err    error
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	lists := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	lists.Title = "Todo Lists"

	input := textinput.New()
	input.CharLimit = 500

	return &Model{
		ctx:     ctx,
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "ui"),
		view:    ListsView,
		lists:   lists,
		loading: true,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:   input,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init fetches the lists and reopens the last active list, if any.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.fetchLists()}
	if m.opts.Active != nil {
		if id := m.opts.Active.ActiveList(); id > 0 {
			cmds = append(cmds, m.openList(id))
		}
	}
	return tea.Batch(cmds...)
}

// Close closes the open list view, if any. Call it after the program exits.
func (m *Model) Close() error {
	return m.closeDetail()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.lists.SetSize(msg.Width-4, msg.Height-8)
		m.input.Width = max(msg.Width-12, 20)
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case ListsView:
			return m.handleListsKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case ConfirmDeleteView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgListsFetched:
		data := msg.data.(listsFetched)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		return m, m.setLists(data.lists)

	case MsgListCreated:
		data := msg.data.(listResult)
		if data.err != nil {
			m.setError("create list", data.err)
			return m, nil
		}
		m.status = styles.ok.Render(fmt.Sprintf("✓ created %q", data.list.Name))
		return m, m.fetchLists()

	case MsgListDeleted:
		data := msg.data.(listResult)
		if data.err != nil {
			m.setError("delete list", data.err)
			return m, nil
		}
		if m.opts.Active != nil && m.opts.Active.ActiveList() == data.list.ID {
			if err := m.opts.Active.SetActiveList(0); err != nil {
				m.logger.Warn("failed to reset active list", "error", err)
			}
		}
		m.status = styles.ok.Render(fmt.Sprintf("✓ deleted %q", data.list.Name))
		return m, m.fetchLists()

	case MsgViewOpened:
		data := msg.data.(viewOpened)
		m.loading = false
		if data.err != nil {
			m.setError("open list", data.err)
			m.view = ListsView
			return m, nil
		}
		if m.detail != nil {
			if err := m.closeDetail(); err != nil {
				m.logger.Debug("closing previous view", "error", err)
			}
		}
		m.detail = data.view
		m.view = DetailView
		m.cursor = 0
		m.status = ""
		m.refresh()
		if m.opts.Active != nil {
			if err := m.opts.Active.SetActiveList(data.view.ListID()); err != nil {
				m.logger.Warn("failed to save active list", "error", err)
			}
		}
		return m, waitForChange(data.view)

	case MsgViewChanged:
		v := msg.data.(*reconcile.View)
		if v != m.detail {
			return m, nil
		}
		m.refresh()
		return m, waitForChange(v)

	case MsgViewEnded:
		if v := msg.data.(*reconcile.View); v == m.detail {
			m.detail = nil
			m.view = ListsView
		}
		return m, nil

	case MsgActionDone:
		data := msg.data.(actionDone)
		if data.action == "save" {
			m.saving = false
		}
		if data.err != nil {
			m.setError(data.action, data.err)
		} else {
			m.status = ""
			if data.action == "save" {
				m.stopInput()
			}
		}
		if m.detail != nil {
			m.refresh()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeNewList {
		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit
		case key.Matches(msg, m.keys.submit):
			name := strings.TrimSpace(m.input.Value())
			m.stopInput()
			if name == "" {
				return m, nil
			}
			return m, m.createList(name)
		case key.Matches(msg, m.keys.cancel):
			m.stopInput()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.lists.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.lists, cmd = m.lists.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if it, ok := m.lists.SelectedItem().(todoListItem); ok {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.openList(it.list.ID))
		}
		return m, nil
	case key.Matches(msg, m.keys.new):
		m.status = ""
		return m, m.startInput(modeNewList, "", "New list name")
	case key.Matches(msg, m.keys.delete):
		if it, ok := m.lists.SelectedItem().(todoListItem); ok {
			l := it.list
			m.confirm = &l
			m.view = ConfirmDeleteView
		}
		return m, nil
	case key.Matches(msg, m.keys.reload):
		return m, m.fetchLists()
	}

	var cmd tea.Cmd
	m.lists, cmd = m.lists.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		target := *m.confirm
		m.confirm = nil
		m.view = ListsView
		return m, m.deleteList(target)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.confirm = nil
		m.view = ListsView
	}
	return m, nil
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeEditItem:
		return m.handleEditKeys(msg)
	case modeAddItem:
		return m.handleAddKeys(msg)
	}

	v := m.detail
	switch {
	case key.Matches(msg, m.keys.quit):
		if err := m.closeDetail(); err != nil {
			m.logger.Debug("closing view", "error", err)
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		if err := m.closeDetail(); err != nil {
			m.logger.Debug("closing view", "error", err)
		}
		m.view = ListsView
		return m, m.fetchLists()
	case key.Matches(msg, m.keys.up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.down):
		if m.cursor < len(m.snap.List.Items)-1 {
			m.cursor++
		}
		return m, nil
	}

	if !m.canEdit() {
		if isActionKey(m.keys, msg) {
			m.status = styles.warn.Render("read-only: you are a viewer of this list")
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.add) {
		m.status = ""
		return m, m.startInput(modeAddItem, "", "What needs doing?")
	}

	item, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.toggle):
		return m, m.act("toggle", func(ctx context.Context) error { return v.ToggleComplete(ctx, item.ID) })
	case key.Matches(msg, m.keys.edit):
		if m.snap.Overlay(item.ID).State == reconcile.RemotelyEditing {
			m.status = styles.warn.Render("someone else is editing this todo")
		}
		if err := v.RequestEdit(item.ID); err != nil {
			m.setError("edit", err)
			return m, nil
		}
		m.editing = item.ID
		m.draft = item.Description
		m.refresh()
		return m, m.startInput(modeEditItem, item.Description, "")
	case key.Matches(msg, m.keys.delete):
		return m, m.act("delete", func(ctx context.Context) error { return v.Delete(ctx, item.ID) })
	case key.Matches(msg, m.keys.clone):
		return m, m.act("clone", func(ctx context.Context) error {
			_, err := v.Clone(ctx, item.ID)
			return err
		})
	}
	return m, nil
}

func (m *Model) handleEditKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v, id := m.detail, m.editing
	switch {
	case msg.String() == "ctrl+c":
		_ = m.closeDetail()
		return m, tea.Quit
	case key.Matches(msg, m.keys.submit):
		if m.saving {
			return m, nil
		}
		m.saving = true
		return m, m.act("save", func(ctx context.Context) error { return v.SubmitEdit(ctx, id) })
	case key.Matches(msg, m.keys.cancel):
		if err := v.CancelEdit(id); err != nil {
			m.logger.Debug("cancel edit", "item_id", id, "error", err)
		}
		m.stopInput()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != m.draft {
		m.draft = value
		if err := v.SetDraft(id, value); err != nil {
			m.setError("edit", err)
			m.stopInput()
		}
	}
	return m, cmd
}

func (m *Model) handleAddKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := m.detail
	switch {
	case msg.String() == "ctrl+c":
		_ = m.closeDetail()
		return m, tea.Quit
	case key.Matches(msg, m.keys.submit):
		desc := m.input.Value()
		m.stopInput()
		return m, m.act("add", func(ctx context.Context) error {
			_, err := v.Create(ctx, desc)
			return err
		})
	case key.Matches(msg, m.keys.cancel):
		m.stopInput()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != ListsView {
		return m, nil
	}
	var cmd tea.Cmd
	m.lists, cmd = m.lists.Update(msg)
	return m, cmd
}

// refresh re-reads the projection and drops a local edit whose item was removed.
func (m *Model) refresh() {
	m.snap = m.detail.Snapshot()
	if n := len(m.snap.List.Items); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	if m.mode == modeEditItem && !m.saving && !m.snap.Editing(m.editing) {
		m.stopInput()
		m.status = styles.warn.Render("todo was deleted by another collaborator")
	}
}

func (m *Model) selected() (models.Item, bool) {
	items := m.snap.List.Items
	if m.cursor < 0 || m.cursor >= len(items) {
		return models.Item{}, false
	}
	return items[m.cursor], true
}

func (m *Model) canEdit() bool {
	return m.snap.List.Role == "" || m.snap.List.Role.CanEdit()
}

func isActionKey(k keyMap, msg tea.KeyMsg) bool {
	return key.Matches(msg, k.add, k.toggle, k.edit, k.delete, k.clone)
}

func (m *Model) startInput(mode inputMode, value, placeholder string) tea.Cmd {
	m.mode = mode
	m.input.Reset()
	m.input.SetValue(value)
	m.input.Placeholder = placeholder
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) stopInput() {
	m.mode = modeNone
	m.editing = 0
	m.draft = ""
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) setError(action string, err error) {
	m.logger.Warn("action failed", "action", action, "error", err)
	m.status = styles.err.Render(fmt.Sprintf("✗ %s: %v", action, err))
}

func (m *Model) closeDetail() error {
	v := m.detail
	if v == nil {
		return nil
	}
	if m.mode == modeEditItem {
		_ = v.CancelEdit(m.editing)
	}
	m.stopInput()
	m.detail = nil
	m.snap = reconcile.Snapshot{}
	return v.Close()
}

func (m *Model) setLists(lists []models.List) tea.Cmd {
	items := make([]list.Item, len(lists))
	for i, l := range lists {
		items[i] = todoListItem{list: l, viewer: m.opts.ViewerID}
	}
	return m.lists.SetItems(items)
}

func (m *Model) fetchLists() tea.Cmd {
	return func() tea.Msg {
		lists, err := m.opts.Lists.ListLists(m.ctx)
		return listsFetchedMsg(lists, err)
	}
}

func (m *Model) createList(name string) tea.Cmd {
	return func() tea.Msg {
		created, err := m.opts.Lists.CreateList(m.ctx, models.ListInput{Name: name})
		if err != nil {
			return listCreatedMsg(models.List{Name: name}, err)
		}
		return listCreatedMsg(*created, nil)
	}
}

func (m *Model) deleteList(l models.List) tea.Cmd {
	return func() tea.Msg {
		return listDeletedMsg(l, m.opts.Lists.DeleteList(m.ctx, l.ID))
	}
}

func (m *Model) openList(id int) tea.Cmd {
	return func() tea.Msg {
		v, err := m.opts.Views.Open(m.ctx, id)
		return viewOpenedMsg(v, err)
	}
}

func (m *Model) act(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg(action, fn(m.ctx))
	}
}

// waitForChange blocks until v signals a change or is closed.
func waitForChange(v *reconcile.View) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-v.Changes(); !ok {
			return viewEndedMsg(v)
		}
		return viewChangedMsg(v)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == ListsView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.err))
	}
	if m.loading {
		return fmt.Sprintf("%s Loading…", m.spinner.View())
	}

	switch m.view {
	case ListsView:
		return m.renderLists()
	case DetailView:
		return m.renderDetail()
	case ConfirmDeleteView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) renderLists() string {
	var b strings.Builder
	b.WriteString(m.lists.View())
	b.WriteString("\n")
	if m.mode == modeNewList {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.new, m.keys.delete, m.keys.reload, m.keys.quit}
	if m.mode == modeNewList {
		helpKeys = []key.Binding{m.keys.submit, m.keys.cancel}
	}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderConfirm() string {
	l := m.confirm
	if l == nil {
		return ""
	}
	title := styles.title.Render(fmt.Sprintf("Delete '%s'?", l.Name))

	var info strings.Builder
	if l.Author.ID != m.opts.ViewerID {
		info.WriteString(styles.warn.Render(fmt.Sprintf("This list belongs to %s.", l.Author.Username)) + "\n")
	}
	info.WriteString("Every todo in it is deleted for all members.\n")

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info.String(), helpView)
}

func (m *Model) renderDetail() string {
	l := m.snap.List
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(l.Name) + "\n")

	header := []string{}
	if l.Author.ID != m.opts.ViewerID {
		header = append(header, styles.badge.Render("by "+l.Author.Username))
	}
	if m.snap.Live {
		header = append(header, styles.ok.Render("● live"))
	} else {
		header = append(header, styles.muted.Render("○ offline"))
	}
	header = append(header, styles.muted.Render(l.CompletionSummary()))
	b.WriteString(strings.Join(header, "  ") + "\n")

	if desc := formatter.RenderMarkdown(l.Description, formatter.StyleDark, width-4); desc != "" {
		b.WriteString(desc + "\n")
	}
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderItems(width*2/3), "  ", m.renderMembers()))
	b.WriteString("\n")

	switch m.mode {
	case modeAddItem:
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}

	b.WriteString("\n" + m.help.ShortHelpView(m.detailHelp()))
	return b.String()
}

func (m *Model) renderItems(width int) string {
	items := m.snap.List.Items
	if len(items) == 0 {
		return styles.muted.Render("no todos yet, press a to add one")
	}

	lines := make([]string, 0, len(items))
	for i, it := range items {
		prefix := "  "
		if i == m.cursor {
			prefix = styles.cursor.Render("> ")
		}

		var text string
		o := m.snap.Overlay(it.ID)
		switch {
		case m.mode == modeEditItem && m.editing == it.ID:
			text = m.input.View()
			if o.State == reconcile.RemotelyEditing {
				text += "  " + styles.warn.Render("✎ also editing… "+o.Description)
			}
		case o.State == reconcile.LocallyEditing:
			text = styles.warn.Render(o.Description)
		case o.State == reconcile.RemotelyEditing:
			text = styles.warn.Render("✎ editing… " + o.Description)
		default:
			text = it.Description
			if it.Completed {
				text = styles.done.Render(text)
			}
		}
		lines = append(lines, lipgloss.NewStyle().MaxWidth(max(width, 20)).Render(prefix+formatter.Checkbox(it.Completed)+" "+text))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderMembers() string {
	members := m.snap.List.Members
	lines := []string{styles.muted.Render("members")}
	for _, mem := range members {
		dot := styles.As("○", lipgloss.Color("#626262"))
		if mem.Active {
			dot = styles.As("●", lipgloss.Color("#04B575"))
		}
		name := mem.User.Username
		if mem.User.ID == m.opts.ViewerID {
			name += " (you)"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", dot, name, styles.muted.Render(string(mem.Role.Name))))
	}
	return styles.panel.Render(strings.Join(lines, "\n"))
}

func (m *Model) detailHelp() []key.Binding {
	switch m.mode {
	case modeEditItem, modeAddItem:
		return []key.Binding{m.keys.submit, m.keys.cancel}
	}
	if !m.canEdit() {
		return []key.Binding{m.keys.up, m.keys.down, m.keys.back, m.keys.quit}
	}
	return []key.Binding{
		m.keys.toggle, m.keys.edit, m.keys.add, m.keys.delete, m.keys.clone, m.keys.back, m.keys.quit,
	}
}
