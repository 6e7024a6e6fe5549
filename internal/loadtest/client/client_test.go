package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roomchat/internal/httpapi"
	"github.com/whisper/roomchat/internal/room"
	"github.com/whisper/roomchat/internal/session"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	httpapi.NewHandler(room.NewDefault(0), session.NewMemoryStore(time.Hour), httpapi.Options{}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	bob, err := New(srv.URL+"/", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, alice.Login(ctx, " alice "))
	require.Equal(t, "alice", alice.Name())
	require.NoError(t, bob.Login(ctx, "bob"))

	require.NoError(t, alice.Send(ctx, "hello bob"))

	msgs, users, err := bob.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, users)
	require.Len(t, msgs, 3)
	require.Equal(t, "hello bob", msgs[2].Content)

	msgs, _, err = bob.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs, "cursor must advance between polls")

	require.NoError(t, alice.Logout(ctx))
	require.Empty(t, alice.Name())

	msgs, users, err = bob.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, users)
	require.Len(t, msgs, 1)
	require.Equal(t, "alice left the room", msgs[0].Content)

	m := bob.GetMetrics()
	require.Equal(t, 3, m.Polls)
	require.Equal(t, 4, m.Received)
	require.Zero(t, m.Errors)
}

func TestClientRejected(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	first, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	second, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, first.Login(ctx, "carol"))

	err = second.Login(ctx, "carol")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "username already taken, please choose another", rejected.Message)

	err = second.Send(ctx, "hi")
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "please log in first", rejected.Message)
	require.Equal(t, 2, second.GetMetrics().Errors)
}
