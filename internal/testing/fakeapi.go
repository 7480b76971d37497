package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const fakeSecret = "fake-api-secret"

type fakeUser struct {
	models.User
	password string
}

type fakeList struct {
	models.List
	members []models.Member
	items   []models.Item
}

type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
	user models.User
}

func (c *wsClient) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// FakeAPI is an in-process todo API with the REST routes, token refresh and the per-list websocket hub.
//
// Item GETs for a missing id answer 200 null, like the real server.
type FakeAPI struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[int]*fakeUser
	lists        map[int]*fakeList
	refresh      map[string]int
	expired      map[string]bool
	calls        map[string]int
	clients      map[int][]*wsClient
	presence     map[int]map[int]models.User
	frames       map[int][]map[string]any
	nextID       int
	refreshes    int
	failRefresh  bool
	hook         func(*http.Request)
	upgrader     websocket.Upgrader
	roles        []models.Role
	statusForced map[string]int
}

// NewFakeAPI starts a [FakeAPI] that is closed when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		users:        make(map[int]*fakeUser),
		lists:        make(map[int]*fakeList),
		refresh:      make(map[string]int),
		expired:      make(map[string]bool),
		calls:        make(map[string]int),
		clients:      make(map[int][]*wsClient),
		presence:     make(map[int]map[int]models.User),
		frames:       make(map[int][]map[string]any),
		statusForced: make(map[string]int),
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		roles: []models.Role{
			{ID: 1, Name: models.RoleOwner},
			{ID: 2, Name: models.RoleEditor},
			{ID: 3, Name: models.RoleViewer},
		},
	}
	f.Server = httptest.NewServer(f.router())
	t.Cleanup(f.Close)
	return f
}

func (f *FakeAPI) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(f.record)

	users := r.PathPrefix("/api/users").Subrouter()
	users.HandleFunc("/login", f.handleLogin).Methods(http.MethodPost)
	users.HandleFunc("/refresh-token", f.handleRefresh).Methods(http.MethodPost)
	users.HandleFunc("", f.handleRegister).Methods(http.MethodPost)
	users.HandleFunc("", f.authed(f.handleFindUsers)).Methods(http.MethodGet)

	lists := r.PathPrefix("/api/todo-lists").Subrouter()
	lists.HandleFunc("", f.authed(f.handleListLists)).Methods(http.MethodGet)
	lists.HandleFunc("", f.authed(f.handleCreateList)).Methods(http.MethodPost)
	lists.HandleFunc("/roles", f.authed(f.handleRoles)).Methods(http.MethodGet)
	lists.HandleFunc("/{id:[0-9]+}", f.authed(f.handleGetList)).Methods(http.MethodGet)
	lists.HandleFunc("/{id:[0-9]+}", f.authed(f.handleUpdateList)).Methods(http.MethodPut)
	lists.HandleFunc("/{id:[0-9]+}", f.authed(f.handleDeleteList)).Methods(http.MethodDelete)
	lists.HandleFunc("/{id:[0-9]+}/clone", f.authed(f.handleCloneList)).Methods(http.MethodPost)
	lists.HandleFunc("/{id:[0-9]+}/share", f.authed(f.handleShareList)).Methods(http.MethodPost)
	lists.HandleFunc("/{id:[0-9]+}/members", f.authed(f.handleMembers)).Methods(http.MethodGet)
	lists.HandleFunc("/{id:[0-9]+}/todos", f.authed(f.handleListItems)).Methods(http.MethodGet)
	lists.HandleFunc("/{id:[0-9]+}/todos", f.authed(f.handleCreateItem)).Methods(http.MethodPost)
	lists.HandleFunc("/{id:[0-9]+}/todos/{item:[0-9]+}", f.authed(f.handleGetItem)).Methods(http.MethodGet)
	lists.HandleFunc("/{id:[0-9]+}/todos/{item:[0-9]+}", f.authed(f.handleUpdateItem)).Methods(http.MethodPut)
	lists.HandleFunc("/{id:[0-9]+}/todos/{item:[0-9]+}", f.authed(f.handleDeleteItem)).Methods(http.MethodDelete)
	lists.HandleFunc("/{id:[0-9]+}/todos/{item:[0-9]+}/clone", f.authed(f.handleCloneItem)).Methods(http.MethodPost)

	r.HandleFunc("/ws/todo-list/{id:[0-9]+}", f.handleWebsocket)
	return r
}

// Close drops every websocket client, then shuts the server down.
func (f *FakeAPI) Close() {
	f.mu.Lock()
	var conns []*websocket.Conn
	for _, clients := range f.clients {
		for _, c := range clients {
			conns = append(conns, c.conn)
		}
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	f.Server.Close()
}

// WSURL returns the websocket base, e.g. ws://127.0.0.1:1234/ws.
func (f *FakeAPI) WSURL() string {
	return "ws" + strings.TrimPrefix(f.URL, "http") + "/ws"
}

// SetHook installs a function run before every request, e.g. to add latency.
func (f *FakeAPI) SetHook(h func(*http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

// FailRefresh makes every refresh call answer 401.
func (f *FakeAPI) FailRefresh(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRefresh = fail
}

// ForceStatus makes "METHOD path" answer status with a detail body until cleared with status 0.
func (f *FakeAPI) ForceStatus(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(f.statusForced, key)
		return
	}
	f.statusForced[key] = status
}

// Calls counts requests for "METHOD path".
func (f *FakeAPI) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// RefreshCalls counts refresh round trips that reached the server.
func (f *FakeAPI) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *FakeAPI) id() int {
	f.nextID++
	return f.nextID
}

// AddUser registers an account directly.
func (f *FakeAPI) AddUser(username, password string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUser{User: models.User{ID: f.id(), Username: username}, password: password}
	f.users[u.ID] = u
	return u.User
}

// SessionFor issues a fresh session for userID.
func (f *FakeAPI) SessionFor(userID int) models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issue(f.users[userID].User)
}

func (f *FakeAPI) issue(u models.User) models.Session {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  u.ID,
		"username": u.Username,
		"exp":      time.Now().Add(time.Hour).Unix(),
		"jti":      uuid.NewString(),
	})
	access, err := token.SignedString([]byte(fakeSecret))
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	refresh := uuid.NewString()
	f.refresh[refresh] = u.ID
	return models.Session{UserID: u.ID, Username: u.Username, AccessToken: access, RefreshToken: refresh}
}

// Expire makes the server answer 401 "Token has expired" for accessToken, and refuse it on the channel handshake.
func (f *FakeAPI) Expire(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired[accessToken] = true
}

// AddList creates a list owned by authorID.
func (f *FakeAPI) AddList(authorID int, name string) models.List {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeList{List: models.List{
		ID:     f.id(),
		Name:   name,
		Author: f.users[authorID].User,
		Role:   models.RoleOwner,
	}}
	f.lists[l.ID] = l
	return l.List
}

// AddMember shares a list with userID.
func (f *FakeAPI) AddMember(listID, userID int, role models.RoleName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addMember(f.lists[listID], f.users[userID].User, role)
}

func (f *FakeAPI) addMember(l *fakeList, u models.User, role models.RoleName) {
	for _, r := range f.roles {
		if r.Name == role {
			l.members = append(l.members, models.Member{User: u, Role: r})
			return
		}
	}
}

// AddItem appends an item without broadcasting.
func (f *FakeAPI) AddItem(listID, authorID int, description string) models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := models.Item{ID: f.id(), ListID: listID, AuthorID: authorID, Description: description}
	f.lists[listID].items = append(f.lists[listID].items, it)
	return it
}

// SetItem overwrites a stored item without broadcasting.
func (f *FakeAPI) SetItem(it models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[it.ListID]
	if i := models.FindItem(l.items, it.ID); i >= 0 {
		l.items[i] = it
	}
}

// RemoveItem deletes an item without broadcasting.
func (f *FakeAPI) RemoveItem(listID, itemID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[listID]
	l.items = slices.DeleteFunc(l.items, func(it models.Item) bool { return it.ID == itemID })
}

// Items returns the stored items of a list.
func (f *FakeAPI) Items(listID int) []models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lists[listID].items)
}

// Broadcast pushes frame to every websocket client of a list.
func (f *FakeAPI) Broadcast(listID int, frame any) {
	f.mu.Lock()
	clients := slices.Clone(f.clients[listID])
	f.mu.Unlock()
	for _, c := range clients {
		_ = c.write(frame)
	}
}

// Kick drops every websocket client of a list, as a server restart would.
func (f *FakeAPI) Kick(listID int) {
	f.mu.Lock()
	clients := slices.Clone(f.clients[listID])
	f.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

// Connected counts open websocket clients of a list.
func (f *FakeAPI) Connected(listID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients[listID])
}

// Frames returns the frames clients sent on a list's channel, in arrival order.
func (f *FakeAPI) Frames(listID int) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.frames[listID])
}

// WaitFor polls cond until it holds or a second passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := r.Method + " " + r.URL.Path
		f.calls[key]++
		hook := f.hook
		forced := f.statusForced[key]
		f.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if forced != 0 {
			writeDetail(w, forced, http.StatusText(forced))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user models.User)

func (f *FakeAPI) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		expired := f.expired[raw]
		f.mu.Unlock()
		if expired {
			writeDetail(w, http.StatusUnauthorized, "Token has expired")
			return
		}

		user, ok := f.verify(raw)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h(w, r, user)
	}
}

func (f *FakeAPI) verify(raw string) (models.User, bool) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte(fakeSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.User{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.User{}, false
	}
	id, _ := claims["user_id"].(float64)
	name, _ := claims["username"].(string)
	return models.User{ID: int(id), Username: name}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(mux.Vars(r)[key])
	return n
}

func (f *FakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct{ Username, Password string }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == body.Username && u.password == body.Password {
			writeJSON(w, http.StatusOK, f.issue(u.User))
			return
		}
	}
	writeDetail(w, http.StatusUnauthorized, "Invalid username or password")
}

func (f *FakeAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct{ Username, Password string }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == body.Username {
			writeDetail(w, http.StatusConflict, "Username already exists")
			return
		}
	}
	u := &fakeUser{User: models.User{ID: f.id(), Username: body.Username}, password: body.Password}
	f.users[u.ID] = u
	writeJSON(w, http.StatusOK, f.issue(u.User))
}

func (f *FakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	userID, ok := f.refresh[body.RefreshToken]
	if f.failRefresh || !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(f.refresh, body.RefreshToken)
	writeJSON(w, http.StatusOK, f.issue(f.users[userID].User))
}

func (f *FakeAPI) handleFindUsers(w http.ResponseWriter, r *http.Request, _ models.User) {
	q := strings.ToLower(r.URL.Query().Get("queryString"))

	f.mu.Lock()
	defer f.mu.Unlock()
	found := []models.User{}
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			found = append(found, u.User)
		}
	}
	slices.SortFunc(found, func(a, b models.User) int { return a.ID - b.ID })
	writeJSON(w, http.StatusOK, found)
}

// visible returns the list and the viewer's role on it, or writes an error.
func (f *FakeAPI) visible(w http.ResponseWriter, listID int, user models.User) (*fakeList, models.RoleName, bool) {
	l, ok := f.lists[listID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Todo list not found")
		return nil, "", false
	}
	if l.Author.ID == user.ID {
		return l, models.RoleOwner, true
	}
	for _, m := range l.members {
		if m.User.ID == user.ID {
			return l, m.Role.Name, true
		}
	}
	writeDetail(w, http.StatusNotFound, "Todo list not found")
	return nil, "", false
}

func (f *FakeAPI) handleListLists(w http.ResponseWriter, _ *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.List{}
	for _, l := range f.lists {
		if l.Author.ID == user.ID {
			out = append(out, l.List)
			continue
		}
		for _, m := range l.members {
			if m.User.ID == user.ID {
				view := l.List
				view.Role = m.Role.Name
				out = append(out, view)
			}
		}
	}
	slices.SortFunc(out, func(a, b models.List) int { return a.ID - b.ID })
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) handleCreateList(w http.ResponseWriter, r *http.Request, user models.User) {
	var in models.ListInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeList{List: models.List{ID: f.id(), Name: in.Name, Description: in.Description, Author: user, Role: models.RoleOwner}}
	f.lists[l.ID] = l
	writeJSON(w, http.StatusOK, l.List)
}

func (f *FakeAPI) handleRoles(w http.ResponseWriter, _ *http.Request, _ models.User) {
	writeJSON(w, http.StatusOK, f.roles)
}

func (f *FakeAPI) handleGetList(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, role, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	view := l.List
	view.Role = role
	writeJSON(w, http.StatusOK, view)
}

func (f *FakeAPI) handleUpdateList(w http.ResponseWriter, r *http.Request, user models.User) {
	var in models.ListInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, role, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		writeDetail(w, http.StatusForbidden, "Only the owner can update the todo list")
		return
	}
	l.Name, l.Description = in.Name, in.Description
	writeJSON(w, http.StatusOK, l.List)
}

func (f *FakeAPI) handleDeleteList(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, role, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		writeDetail(w, http.StatusForbidden, "Only the owner can delete the todo list")
		return
	}
	delete(f.lists, l.ID)
	writeJSON(w, http.StatusOK, true)
}

func (f *FakeAPI) handleCloneList(w http.ResponseWriter, r *http.Request, user models.User) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	src, _, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	clone := &fakeList{List: models.List{ID: f.id(), Name: body.Name, Description: src.Description, Author: user, Role: models.RoleOwner}}
	for _, it := range src.items {
		it.ID, it.ListID, it.AuthorID = f.id(), clone.ID, user.ID
		clone.items = append(clone.items, it)
	}
	f.lists[clone.ID] = clone
	writeJSON(w, http.StatusOK, clone.List)
}

func (f *FakeAPI) handleShareList(w http.ResponseWriter, r *http.Request, user models.User) {
	var req models.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, role, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		writeDetail(w, http.StatusForbidden, "Only the owner can share the todo list")
		return
	}
	for _, id := range req.UserIDs {
		u, ok := f.users[id]
		if !ok {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("User %d not found", id))
			return
		}
		for _, candidate := range f.roles {
			if candidate.ID == req.RoleID {
				f.addMember(l, u.User, candidate.Name)
			}
		}
	}
	writeJSON(w, http.StatusOK, true)
}

func (f *FakeAPI) handleMembers(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, _, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	out := append([]models.Member{}, l.members...)
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) handleListItems(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, _, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, append([]models.Item{}, l.items...))
}

func (f *FakeAPI) handleGetItem(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, _, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return
	}
	if i := models.FindItem(l.items, pathInt(r, "item")); i >= 0 {
		writeJSON(w, http.StatusOK, l.items[i])
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (f *FakeAPI) editable(w http.ResponseWriter, r *http.Request, user models.User) (*fakeList, bool) {
	l, role, ok := f.visible(w, pathInt(r, "id"), user)
	if !ok {
		return nil, false
	}
	if !role.CanEdit() {
		writeDetail(w, http.StatusForbidden, "Viewers cannot modify todo items")
		return nil, false
	}
	return l, true
}

func (f *FakeAPI) handleCreateItem(w http.ResponseWriter, r *http.Request, user models.User) {
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.editable(w, r, user)
	if !ok {
		return
	}
	it := models.Item{ID: f.id(), ListID: l.ID, AuthorID: user.ID, Description: body.Description}
	l.items = append(l.items, it)
	writeJSON(w, http.StatusOK, it)
}

func (f *FakeAPI) handleUpdateItem(w http.ResponseWriter, r *http.Request, user models.User) {
	var update models.ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.editable(w, r, user)
	if !ok {
		return
	}
	i := models.FindItem(l.items, pathInt(r, "item"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Todo item not found")
		return
	}
	if update.Completed != nil {
		l.items[i].Completed = *update.Completed
	}
	if update.Description != nil {
		l.items[i].Description = *update.Description
	}
	writeJSON(w, http.StatusOK, l.items[i])
}

func (f *FakeAPI) handleDeleteItem(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.editable(w, r, user)
	if !ok {
		return
	}
	id := pathInt(r, "item")
	before := len(l.items)
	l.items = slices.DeleteFunc(l.items, func(it models.Item) bool { return it.ID == id })
	writeJSON(w, http.StatusOK, len(l.items) < before)
}

func (f *FakeAPI) handleCloneItem(w http.ResponseWriter, r *http.Request, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.editable(w, r, user)
	if !ok {
		return
	}
	i := models.FindItem(l.items, pathInt(r, "item"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Todo item not found")
		return
	}
	clone := l.items[i]
	clone.ID, clone.AuthorID, clone.Completed = f.id(), user.ID, false
	l.items = append(l.items, clone)
	writeJSON(w, http.StatusOK, clone)
}

var relayed = map[string]bool{
	"todo_item_create":           true,
	"todo_item_update":           true,
	"todo_item_delete":           true,
	"todo_item_open_for_editing": true,
	"todo_item_close_editing":    true,
}

func (f *FakeAPI) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("access_token")
	f.mu.Lock()
	expired := f.expired[raw]
	f.mu.Unlock()

	user, ok := f.verify(raw)
	if !ok || expired {
		writeDetail(w, http.StatusForbidden, "Invalid token")
		return
	}
	listID := pathInt(r, "id")

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn, user: user}

	f.mu.Lock()
	others := slices.Clone(f.clients[listID])
	f.clients[listID] = append(f.clients[listID], client)
	if f.presence[listID] == nil {
		f.presence[listID] = make(map[int]models.User)
	}
	f.presence[listID][user.ID] = user
	snapshot := make(map[int]models.User, len(f.presence[listID]))
	for id, u := range f.presence[listID] {
		snapshot[id] = u
	}
	f.mu.Unlock()

	for _, o := range others {
		_ = o.write(map[string]any{"action": "connect", "user": user})
	}
	_ = client.write(map[string]any{"action": "init", "data": map[string]any{"users": snapshot}})

	defer f.leave(listID, client)
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		f.mu.Lock()
		f.frames[listID] = append(f.frames[listID], frame)
		targets := slices.DeleteFunc(slices.Clone(f.clients[listID]), func(c *wsClient) bool { return c == client })
		f.mu.Unlock()

		action, _ := frame["action"].(string)
		var out map[string]any
		switch {
		case relayed[action]:
			out = map[string]any{"action": action, "todo_item_id": frame["todo_item_id"]}
		case action == "todo_item_edit_description":
			out = map[string]any{"action": action, "todo_item_id": frame["todo_item_id"], "description": frame["description"]}
		default:
			continue
		}
		for _, c := range targets {
			_ = c.write(out)
		}
	}
}

func (f *FakeAPI) leave(listID int, client *wsClient) {
	client.conn.Close()

	f.mu.Lock()
	f.clients[listID] = slices.DeleteFunc(f.clients[listID], func(c *wsClient) bool { return c == client })
	stillHere := slices.ContainsFunc(f.clients[listID], func(c *wsClient) bool { return c.user.ID == client.user.ID })
	if !stillHere {
		delete(f.presence[listID], client.user.ID)
	}
	others := slices.Clone(f.clients[listID])
	f.mu.Unlock()

	for _, o := range others {
		_ = o.write(map[string]any{"action": "disconnect", "user": client.user})
	}
}
