package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denote/internal/client"
)

type harness struct {
	cli     *cli
	answer  bool
	prompts []string
	store   *client.SessionStore
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	server  *httptest.Server
}

func newHarness(t *testing.T, handler http.HandlerFunc) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := client.NewSessionStore(filepath.Join(t.TempDir(), "token"))
	h := &harness{store: store, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, server: srv}
	h.cli = &cli{
		store:        store,
		stdout:       h.stdout,
		stderr:       h.stderr,
		readPassword: func(string) (string, error) { return "pw123", nil },
		confirm: func(prompt string) (bool, error) {
			h.prompts = append(h.prompts, prompt)
			return h.answer, nil
		},
	}
	return h
}

func (h *harness) run(args ...string) int {
	return h.cli.run(context.Background(), append([]string{"-server", h.server.URL}, args...))
}

func TestGuardedCommandsRequireLogin(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	for _, args := range [][]string{{"dashboard"}, {"notes"}, {"note", "x"}, {"rate", "x", "3"}, {"delete", "x"}} {
		h.stderr.Reset()
		assert.Equal(t, 1, h.run(args...), args)
		assert.Contains(t, h.stderr.String(), "please log in")
	}
}

func TestLoginStoresTokenAndLogoutClearsIt(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/denote/login":
			_, _ = io.WriteString(w, `{"token":"tok","user":{"id":"u1","username":"alice"}}`)
		case "/api/denote/profile":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"user":{"id":"u1","username":"alice","created_at":"2026-01-02T00:00:00Z"}}`)
		}
	})

	require.Equal(t, 0, h.run("login", "alice"))
	assert.Contains(t, h.stdout.String(), "Logged in as alice")

	sess, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, client.Session{Token: "tok", Username: "alice"}, sess)

	require.Equal(t, 0, h.run("dashboard"))
	assert.Contains(t, h.stdout.String(), "Welcome, alice")

	require.Equal(t, 0, h.run("logout"))
	sess, err = h.store.Load()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestServerErrorIsShown(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid username or password","code":"UNAUTHORIZED"}`)
	})

	assert.Equal(t, 1, h.run("login", "alice"))
	assert.Contains(t, h.stderr.String(), "invalid username or password")

	sess, err := h.store.Load()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestNotesTable(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CS", r.URL.Query().Get("branch"))
		_, _ = io.WriteString(w, `{"notes":[{"id":"n1","title":"Trees","subject":"DS","branch":"CS","sem":"3","rating":4,"uploader":"alice","cid":"bafk"}]}`)
	})
	require.NoError(t, h.store.Save(client.Session{Token: "tok"}))

	require.Equal(t, 0, h.run("notes", "-branch", "CS"))
	out := h.stdout.String()
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Trees")
	assert.Contains(t, out, "★★★★☆")
}

func TestRateRejectsNonNumber(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	require.NoError(t, h.store.Save(client.Session{Token: "tok"}))

	assert.Equal(t, 1, h.run("rate", "n1", "five"))
	assert.Contains(t, h.stderr.String(), "rating must be a number")
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, func(http.ResponseWriter, *http.Request) {})
	assert.Equal(t, 2, h.run("frobnicate"))
	assert.Contains(t, h.stderr.String(), "usage: denote")
}

func TestStars(t *testing.T) {
	assert.Equal(t, "☆☆☆☆☆", stars(0))
	assert.Equal(t, "★★★★★", stars(5))
	assert.Equal(t, "9", stars(9))
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	var calls int
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = io.WriteString(w, `{"deletedCount":2}`)
	})
	require.NoError(t, h.store.Save(client.Session{Token: "tok"}))

	require.Equal(t, 0, h.run("delete", "n1", "n2"))
	assert.Equal(t, []string{"Delete 2 note(s)? [y/N] "}, h.prompts)
	assert.Contains(t, h.stdout.String(), "Nothing deleted")
	assert.Zero(t, calls)

	h.answer = true
	require.Equal(t, 0, h.run("delete", "n1", "n2"))
	assert.Contains(t, h.stdout.String(), "Deleted 2 of 2 notes")
	assert.Equal(t, 1, calls)
}

func TestDeleteWithYesSkipsPrompt(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"deletedCount":1}`)
	})
	require.NoError(t, h.store.Save(client.Session{Token: "tok"}))

	require.Equal(t, 0, h.run("delete", "-y", "n1"))
	assert.Empty(t, h.prompts)
	assert.Contains(t, h.stdout.String(), "Deleted 1 of 1 notes")
}

func TestIsYes(t *testing.T) {
	for _, answer := range []string{"y", "Y", "yes", " YES\n"} {
		assert.True(t, isYes(answer), answer)
	}
	for _, answer := range []string{"", "\n", "n", "no", "yeah"} {
		assert.False(t, isYes(answer), answer)
	}
}
