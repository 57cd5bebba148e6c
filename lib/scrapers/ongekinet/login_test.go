package ongekinet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"platscore-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPageFixture = `
<div class="login_block">
	<form action="/sign-in/" method="post">
		<input type="hidden" name="token" value="csrf-123">
		<input type="text" name="segaId">
		<input type="password" name="password">
	</form>
</div>`

const aimeListFixture = `
<div class="aime_list">
	<form action="/aimeList/submit/" method="post">
		<input type="hidden" name="idx" value="0">
	</form>
</div>`

func newLoginTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginPageFixture))
	})
	mux.HandleFunc("/sign-in/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "csrf-123", r.PostForm.Get("token"))
		if r.PostForm.Get("segaId") != "user" || r.PostForm.Get("password") != "pass" {
			// the site re-renders the credential form on bad logins,
			// status stays 200
			w.Write([]byte(loginPageFixture))
			return
		}
		w.Write([]byte(aimeListFixture))
	})
	mux.HandleFunc("/aimeList/submit/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "0", r.PostForm.Get("idx"))
		http.SetCookie(w, &http.Cookie{Name: "_t", Value: "session-token", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "userId", Value: "1234", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "friendCodeList", Value: "5678", Path: "/"})
		w.Write([]byte(`<div class="user_data_container">player</div>`))
	})
	return httptest.NewServer(mux)
}

func TestLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:ongekinet")
	defer cleanup()

	server := newLoginTestServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	client, err := NewClient(ClientOptions{
		BaseUrl:  server.URL + "/",
		Username: "user",
		Password: "pass",
	})
	require.NoError(t, err)

	creds, err := client.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, Credentials{
		Token:          "session-token",
		UserID:         "1234",
		FriendCodeList: "5678",
	}, creds)
	require.Equal(t,
		"_t=session-token; userId=1234; friendCodeList=5678",
		creds.cookieHeader(),
	)
}

func TestLoginRejected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:ongekinet")
	defer cleanup()

	server := newLoginTestServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	client, err := NewClient(ClientOptions{
		BaseUrl:  server.URL + "/",
		Username: "user",
		Password: "wrong",
	})
	require.NoError(t, err)

	_, err = client.Login(ctx)
	require.ErrorIs(t, err, ErrLoginFailed)
}
