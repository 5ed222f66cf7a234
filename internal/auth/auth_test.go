package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rdvm/jukebox/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users  []*repository.User
	nextID int64
}

func (m *memStore) CountUsers(context.Context) (int, error) { return len(m.users), nil }

func (m *memStore) CreateUser(_ context.Context, u *repository.User) error {
	m.nextID++
	u.ID = m.nextID
	m.users = append(m.users, u)
	return nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (*repository.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func newTestService() (*Service, *memStore) {
	store := &memStore{}
	return NewService("test-secret", store), store
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService()

	token, err := svc.Issue(&repository.User{ID: 7, Name: "Alice", Role: repository.RoleAdmin})
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, repository.RoleAdmin, claims.Role)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Verify("")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	other := NewService("different-secret", nil)
	token, err := other.Issue(&repository.User{ID: 1, Name: "Eve"})
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestCheckInitReflectsUserCount(t *testing.T) {
	svc, store := newTestService()
	mux := http.NewServeMux()
	svc.Routes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/check-init", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["needsSetup"])

	store.users = append(store.users, &repository.User{Username: "admin"})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/check-init", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp["needsSetup"])
}

func TestSetupCreatesFirstAdminOnly(t *testing.T) {
	svc, store := newTestService()
	mux := http.NewServeMux()
	svc.Routes(mux)

	w := postJSON(t, mux, "/api/auth/setup", map[string]string{
		"username": "admin", "password": "hunter2", "name": "Alice",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp tokenResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, repository.RoleAdmin, resp.User.Role)

	require.Len(t, store.users, 1)
	assert.NotEqual(t, "hunter2", store.users[0].PasswordHash, "password must be hashed at rest")

	// The endpoint closes once a user exists.
	w = postJSON(t, mux, "/api/auth/setup", map[string]string{
		"username": "second", "password": "pw",
	}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService()
	mux := http.NewServeMux()
	svc.Routes(mux)
	postJSON(t, mux, "/api/auth/setup", map[string]string{"username": "admin", "password": "hunter2"}, nil)

	w := postJSON(t, mux, "/api/auth/login", map[string]string{"username": "admin", "password": "hunter2"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp tokenResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := svc.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleAdmin, claims.Role)

	w = postJSON(t, mux, "/api/auth/login", map[string]string{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, mux, "/api/auth/login", map[string]string{"username": "ghost", "password": "pw"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	svc, store := newTestService()
	mux := http.NewServeMux()
	svc.Routes(mux)
	postJSON(t, mux, "/api/auth/setup", map[string]string{"username": "admin", "password": "hunter2"}, nil)

	body := map[string]string{"username": "bob", "password": "pw", "name": "Bob"}

	// No token.
	w := postJSON(t, mux, "/api/auth/register", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Non-admin token.
	userToken, err := svc.Issue(&repository.User{ID: 9, Name: "Bob", Role: repository.RoleUser})
	require.NoError(t, err)
	w = postJSON(t, mux, "/api/auth/register", body, http.Header{"Authorization": {"Bearer " + userToken}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin token.
	adminToken, err := svc.Issue(store.users[0])
	require.NoError(t, err)
	w = postJSON(t, mux, "/api/auth/register", body, http.Header{"Authorization": {"Bearer " + adminToken}})
	require.Equal(t, http.StatusOK, w.Code)

	created, err := store.UserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, repository.RoleUser, created.Role)
}
