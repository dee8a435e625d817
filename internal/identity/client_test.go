package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentity is a minimal identity service for tests. Each handler is
// optional; unset paths return 404.
type fakeIdentity struct {
	mux *http.ServeMux
	srv *httptest.Server
}

func newFakeIdentity(t *testing.T) *fakeIdentity {
	t.Helper()

	f := &fakeIdentity{mux: http.NewServeMux()}
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeIdentity) handle(path string, status int, body any) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

func grant(id, refresh string) map[string]any {
	return map[string]any{
		"id_token":      id,
		"access_token":  "access-" + id,
		"refresh_token": refresh,
		"expires_in":    3600,
	}
}

func TestSignIn_Success(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signin", http.StatusOK, grant("id-1", "refresh-1"))

	c := NewClient(f.srv.URL, nil, nil)

	tok, err := c.SignIn(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "id-1", tok.IDToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "alice", tok.Username)
	assert.True(t, c.HasLiveSession())
}

func TestSignIn_NotAuthorized(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signin", http.StatusUnauthorized, map[string]string{
		"code":    "not_authorized",
		"message": "Incorrect username or password.",
	})

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.SignIn(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, c.HasLiveSession())

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusUnauthorized, svcErr.StatusCode)
	assert.Contains(t, svcErr.Message, "Incorrect")
}

func TestSignIn_UnconfirmedAccount(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signin", http.StatusForbidden, map[string]string{
		"code":    "user_not_confirmed",
		"message": "User is not confirmed.",
	})

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.SignIn(context.Background(), "bob", "hunter2")
	assert.ErrorIs(t, err, ErrUserNotConfirmed)
}

func TestRefreshSession_Success(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/refresh", http.StatusOK, grant("id-2", ""))

	c := NewClient(f.srv.URL, nil, nil)

	tok, err := c.RefreshSession(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "id-2", tok.IDToken)
	// No rotated token in the grant: the one that worked is kept.
	assert.Equal(t, "refresh-1", tok.RefreshToken)
}

func TestRefreshSession_Expired(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/refresh", http.StatusUnauthorized, map[string]string{
		"code":    "refresh_token_expired",
		"message": "Refresh Token has expired",
	})

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.RefreshSession(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestCurrentSession_NoLiveHandle(t *testing.T) {
	f := newFakeIdentity(t)
	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.CurrentSession(context.Background())
	assert.ErrorIs(t, err, ErrNoLiveSession)
}

func TestCurrentSession_RenewsFromLiveHandle(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signin", http.StatusOK, grant("id-1", "refresh-1"))
	f.handle("/auth/refresh", http.StatusOK, grant("id-2", "refresh-2"))

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.SignIn(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	tok, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id-2", tok.IDToken)
	assert.Equal(t, "alice", tok.Username)
}

func TestSignUpConfirmResend(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signup", http.StatusOK, map[string]string{})
	f.handle("/auth/confirm", http.StatusBadRequest, map[string]string{
		"code":    "code_mismatch",
		"message": "Invalid verification code provided",
	})
	f.handle("/auth/resend", http.StatusOK, map[string]string{})

	c := NewClient(f.srv.URL, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.SignUp(ctx, "carol", "hunter2", map[string]string{"locale": "en"}))
	assert.ErrorIs(t, c.ConfirmSignUp(ctx, "carol", "000000"), ErrCodeMismatch)
	assert.NoError(t, c.ResendConfirmationCode(ctx, "carol"))
}

func TestSignOut_DropsHandleEvenOnServiceFailure(t *testing.T) {
	f := newFakeIdentity(t)
	f.handle("/auth/signin", http.StatusOK, grant("id-1", "refresh-1"))
	f.handle("/auth/signout", http.StatusInternalServerError, map[string]string{
		"message": "boom",
	})

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.SignIn(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	err = c.SignOut(context.Background())
	assert.Error(t, err)
	assert.False(t, c.HasLiveSession())
}

func TestSignOut_NoLiveSessionIsNoop(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", nil, nil)
	assert.NoError(t, c.SignOut(context.Background()))
}

func TestDeleteAccount_RequiresLiveSession(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", nil, nil)
	assert.ErrorIs(t, c.DeleteAccount(context.Background()), ErrNoLiveSession)
}

func TestServiceError_UnparseableBody(t *testing.T) {
	f := newFakeIdentity(t)
	f.mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	})

	c := NewClient(f.srv.URL, nil, nil)

	_, err := c.SignIn(context.Background(), "alice", "hunter2")
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
	assert.Contains(t, svcErr.Message, "gateway error")
}
