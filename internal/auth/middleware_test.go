package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	exists bool
	err    error
	calls  int
}

func (f *fakeChecker) UserExists(ctx context.Context, userID string) (bool, error) {
	f.calls++
	return f.exists, f.err
}

type capture struct {
	called   bool
	identity Identity
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.identity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/user/favourites", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestMiddleware_RejectsMissingOrBadHeader(t *testing.T) {
	now := issuedAt
	svc := newTestTokenService(t, time.Hour, &now)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "missing", header: "", want: "missing authorization token"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", want: "invalid authorization format"},
		{name: "jwt scheme", header: "JWT abc.def.ghi", want: "invalid authorization format"},
		{name: "no token", header: "Bearer", want: "invalid authorization format"},
		{name: "blank token", header: "Bearer    ", want: "invalid authorization format"},
		{name: "garbage token", header: "Bearer not.a.jwt", want: "invalid or expired token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &capture{}
			rec := serve(Middleware(svc, nil, c.handler()), tc.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, c.called)
			assert.Equal(t, tc.want, errorBody(t, rec))
		})
	}
}

func TestMiddleware_AttachesIdentity(t *testing.T) {
	now := issuedAt
	svc := newTestTokenService(t, time.Hour, &now)

	identity := Identity{ID: "u1", UserName: "alice"}
	tok, err := svc.Issue(identity)
	require.NoError(t, err)

	for _, scheme := range []string{"Bearer", "bearer", "BEARER"} {
		c := &capture{}
		rec := serve(Middleware(svc, nil, c.handler()), scheme+" "+tok)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, c.called)
		assert.Equal(t, identity, c.identity)
	}
}

func TestMiddleware_RejectsExpiredAndTampered(t *testing.T) {
	now := issuedAt
	svc := newTestTokenService(t, time.Hour, &now)

	tok, err := svc.Issue(Identity{ID: "u1", UserName: "alice"})
	require.NoError(t, err)

	c := &capture{}
	rec := serve(Middleware(svc, nil, c.handler()), "Bearer "+flipSignature(t, tok))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, c.called)

	now = issuedAt.Add(2 * time.Hour)
	rec = serve(Middleware(svc, nil, c.handler()), "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", errorBody(t, rec))
	assert.False(t, c.called)
}

func TestMiddleware_VerifyAgainstStore(t *testing.T) {
	now := issuedAt
	svc := newTestTokenService(t, time.Hour, &now)

	tok, err := svc.Issue(Identity{ID: "u1", UserName: "alice"})
	require.NoError(t, err)

	t.Run("user exists", func(t *testing.T) {
		checker := &fakeChecker{exists: true}
		c := &capture{}
		rec := serve(Middleware(svc, checker, c.handler()), "Bearer "+tok)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, c.called)
		assert.Equal(t, 1, checker.calls)
	})

	t.Run("user gone", func(t *testing.T) {
		checker := &fakeChecker{exists: false}
		c := &capture{}
		rec := serve(Middleware(svc, checker, c.handler()), "Bearer "+tok)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, c.called)
	})

	t.Run("store failure", func(t *testing.T) {
		checker := &fakeChecker{err: errors.New("connection reset")}
		c := &capture{}
		rec := serve(Middleware(svc, checker, c.handler()), "Bearer "+tok)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "unable to verify user", errorBody(t, rec))
		assert.False(t, c.called)
	})

	t.Run("invalid token skips store", func(t *testing.T) {
		checker := &fakeChecker{exists: true}
		rec := serve(Middleware(svc, checker, (&capture{}).handler()), "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, checker.calls)
	})
}

func TestIdentityFromContext_Empty(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
}
