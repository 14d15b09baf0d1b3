package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwan-systems/diwan/internal/auth"
	"github.com/diwan-systems/diwan/internal/user"
)

func newUserFixture(t *testing.T) (*UserHandlers, *user.InMemoryRepository, *user.User) {
	t.Helper()
	users := user.NewInMemoryRepository()
	seeded := seedTestUser(t, users)
	return NewUserHandlers(users), users, seeded
}

func TestListUsersOmitsCredentials(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/users", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d users", len(out))
	}
	if out[0]["username"] != "sara" {
		t.Errorf("user %v", out[0])
	}
	for _, key := range []string{"password", "passwordHash", "resetTokenHash"} {
		if _, ok := out[0][key]; ok {
			t.Errorf("%s leaked in listing", key)
		}
	}
}

func TestGetUser(t *testing.T) {
	h, _, seeded := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/"+seeded.ID, nil)
	req.SetPathValue("id", seeded.ID)
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["username"] != "sara" {
		t.Errorf("body %v", body)
	}
}

func TestGetUserNotFound(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/missing", nil)
	req.SetPathValue("id", "missing")
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "User not found" {
		t.Errorf("message %v", body["message"])
	}
}

func TestCreateUser(t *testing.T) {
	h, users, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users", jsonBody(t, CreateUserRequest{
		EnName:   "Omar",
		ArName:   "عمر",
		Username: "omar",
		Email:    "omar@example.com",
		Password: "omar-password",
		Roles:    []string{"Editor"},
	}))
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["message"] != "New user omar created" {
		t.Errorf("message %v", body["message"])
	}

	u, err := users.GetByUsername(context.Background(), "omar")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if !u.IsActive {
		t.Error("new user not active")
	}
	if u.PasswordHash == "omar-password" {
		t.Error("password stored in plaintext")
	}
	if !auth.CheckPassword(u.PasswordHash, "omar-password") {
		t.Error("stored hash does not match password")
	}
}

func TestCreateUserDefaultsRole(t *testing.T) {
	h, users, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users", jsonBody(t, CreateUserRequest{
		EnName:   "Omar",
		ArName:   "عمر",
		Username: "omar",
		Email:    "omar@example.com",
		Password: "omar-password",
	}))
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	u, err := users.GetByUsername(context.Background(), "omar")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if len(u.Roles) != 1 || u.Roles[0] != user.DefaultRole {
		t.Errorf("roles %v", u.Roles)
	}
}

func TestCreateUserMissingFields(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users", jsonBody(t, CreateUserRequest{
		Username: "omar",
		Password: "omar-password",
	}))
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "All fields are required" {
		t.Errorf("message %v", body["message"])
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users", jsonBody(t, CreateUserRequest{
		EnName:   "Sara Two",
		ArName:   "سارة",
		Username: "SARA", // collides case-insensitively with the seeded user
		Email:    "sara2@example.com",
		Password: "another-pass",
		Roles:    []string{"Editor"},
	}))
	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "Duplicate user! Please check" {
		t.Errorf("message %v", body["message"])
	}
}

func TestUpdateUser(t *testing.T) {
	h, users, seeded := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/users", jsonBody(t, UpdateUserRequest{
		ID:       seeded.ID,
		EnName:   "Sara M",
		ArName:   "سارة",
		Username: "sara",
		Email:    "s.new@example.com",
		Roles:    []string{"Admin", "Editor"},
	}))
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["message"] != "sara updated" {
		t.Errorf("message %v", body["message"])
	}

	u, err := users.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if u.Email != "s.new@example.com" {
		t.Errorf("email %q", u.Email)
	}
	// Password was omitted, so the old one still works.
	if !auth.CheckPassword(u.PasswordHash, testPassword) {
		t.Error("old password no longer matches")
	}
}

func TestUpdateUserChangesPassword(t *testing.T) {
	h, users, seeded := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/users", jsonBody(t, UpdateUserRequest{
		ID:       seeded.ID,
		EnName:   "Sara",
		ArName:   "سارة",
		Username: "sara",
		Email:    "sara@example.com",
		Password: "rotated-pass",
		Roles:    []string{"Admin"},
	}))
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	u, _ := users.GetByID(context.Background(), seeded.ID)
	if !auth.CheckPassword(u.PasswordHash, "rotated-pass") {
		t.Error("new password does not match")
	}
}

func TestUpdateUserMissingID(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/users", jsonBody(t, UpdateUserRequest{
		EnName:   "Sara",
		ArName:   "سارة",
		Username: "sara",
		Email:    "sara@example.com",
		Roles:    []string{"Admin"},
	}))
	h.Update(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "All fields except password are required" {
		t.Errorf("message %v", body["message"])
	}
}

func TestUpdateUserNotFound(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/users", jsonBody(t, UpdateUserRequest{
		ID:       "missing",
		EnName:   "Nobody",
		ArName:   "لا أحد",
		Username: "nobody",
		Email:    "nobody@example.com",
		Roles:    []string{"Spectator"},
	}))
	h.Update(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	h, users, seeded := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/users", jsonBody(t, DeleteUserRequest{ID: seeded.ID}))
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	want := "Username sara with ID " + seeded.ID + " deleted"
	if body := decodeBody(t, w); body["message"] != want {
		t.Errorf("message %v, want %q", body["message"], want)
	}

	if _, err := users.GetByID(context.Background(), seeded.ID); err == nil {
		t.Error("user still present after delete")
	}
}

func TestDeleteUserMissingID(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/users", jsonBody(t, DeleteUserRequest{}))
	h.Delete(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "User ID required" {
		t.Errorf("message %v", body["message"])
	}
}

func TestDeleteUserNotFound(t *testing.T) {
	h, _, _ := newUserFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/users", jsonBody(t, DeleteUserRequest{ID: "missing"}))
	h.Delete(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}
