package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskvault/internal/identity"
)

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("Bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestGoTrueAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"id":"u1","email":"Alice@Example.com"}`))
		case "Bearer anon":
			_, _ = w.Write([]byte(`{"id":""}`))
		case "Bearer down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	g := NewGoTrue(srv.URL+"/", "service-key")
	ctx := context.Background()

	id, err := g.Authenticate(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{UserID: "u1", Email: "Alice@Example.com", Token: "good"}, id)

	_, err = g.Authenticate(ctx, "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Authenticate(ctx, "anon")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Authenticate(ctx, "down")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorizeURL(t *testing.T) {
	g := NewGoTrue("https://proj.supabase.co", "k")
	assert.Equal(t,
		"https://proj.supabase.co/auth/v1/authorize?provider=google&redirect_to=https%3A%2F%2Fapp.example.com%2Fcb%3Fx%3D1",
		g.AuthorizeURL("https://app.example.com/cb?x=1"))
}

func TestStaticTokens(t *testing.T) {
	s := StaticTokens{"t1": {UserID: "u1", Email: "a@x.io"}}
	id, err := s.Authenticate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", id.Token)

	_, err = s.Authenticate(context.Background(), "t2")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAllowlist(t *testing.T) {
	open := NewAllowlist([]string{" ", ""})
	assert.True(t, open.Allows("anyone@x.io"))
	assert.True(t, (*Allowlist)(nil).Allows("x"))

	a := NewAllowlist([]string{" Alice@Example.com ", "bob@x.io"})
	assert.True(t, a.Allows("alice@example.com"))
	assert.True(t, a.Allows("BOB@x.io"))
	assert.False(t, a.Allows("eve@x.io"))
	assert.False(t, a.Allows(""))
}
