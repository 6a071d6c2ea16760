package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denote/internal/auth"
	"denote/internal/config"
	"denote/internal/contentstore"
	"denote/internal/db"
	"denote/internal/handler"
	"denote/internal/model"
	"denote/internal/repository"
	"denote/internal/service"
)

type testServer struct {
	t      *testing.T
	e      *echo.Echo
	pinner *contentstore.MemoryPinner
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB, false))

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		MaxUploadBytes: 1 << 20,
		CORSOrigins:    "*",
		GatewayURL:     "https://gw.example",
	}

	pinner := contentstore.NewMemoryPinner()
	store := contentstore.New(pinner, contentstore.Options{
		Backend:    "memory",
		GatewayURL: cfg.GatewayURL,
		MaxBytes:   cfg.MaxUploadBytes,
	})

	authService := service.NewAuthService(repository.NewUserRepository(gormDB), auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL))
	noteService := service.NewNoteService(repository.NewNoteRepository(gormDB), store, nil)

	e := echo.New()
	Register(e, cfg, authService, handler.NewAuthHandler(authService), handler.NewNoteHandler(noteService, cfg.MaxUploadBytes))

	return &testServer{t: t, e: e, pinner: pinner}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if s.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(title, subject, branch, sem string, content []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range map[string]string{"title": title, "subject": subject, "branch": branch, "sem": sem} {
		require.NoError(s.t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(handler.FileField, strings.ToLower(title)+".pdf")
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, BasePath+"/notes", buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func pdf(body string) []byte {
	return []byte("%PDF-1.4\n" + body + "\n%%EOF\n")
}

func TestEndToEnd_NoteLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, BasePath+"/register", map[string]string{"username": "alice", "password": "pw123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, BasePath+"/register", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, BasePath+"/login", map[string]string{"username": "alice", "password": "pw123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.token = decode[handler.AuthResponse](t, rec).Token
	require.NotEmpty(t, s.token)

	rec = s.do(http.MethodGet, BasePath+"/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[handler.ProfileResponse](t, rec).User.Username)

	rec = s.upload("Trees", "DS", "CS", "3", pdf("trees"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handler.CreateNoteResponse](t, rec)
	assert.Equal(t, 0, created.Note.Rating)
	assert.Equal(t, model.DefaultUploader, created.Note.Uploader)
	assert.Equal(t, created.CID, created.Note.CID)

	stored, ok := s.pinner.Get(created.CID)
	require.True(t, ok)
	assert.Equal(t, pdf("trees"), stored)

	rec = s.upload("Circuits", "EC", "EE", "3", pdf("circuits"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, BasePath+"/notes?branch=cs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[handler.ListNotesResponse](t, rec).Notes
	require.Len(t, listed, 1)
	assert.Equal(t, created.Note.ID, listed[0].ID)

	rec = s.do(http.MethodGet, BasePath+"/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[handler.ListNotesResponse](t, rec).Notes, 2)

	for _, key := range []string{created.Note.ID, created.CID} {
		rec = s.do(http.MethodGet, BasePath+"/notes/"+key, nil)
		require.Equal(t, http.StatusOK, rec.Code, key)
		got := decode[handler.NoteResponse](t, rec)
		assert.Equal(t, created.Note.ID, got.Note.ID)
		assert.Equal(t, "https://gw.example/ipfs/"+created.CID, got.URL)
	}

	rec = s.do(http.MethodPatch, BasePath+"/notes/"+created.Note.ID, map[string]int{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decode[handler.NoteResponse](t, rec).Note.Rating)

	for _, key := range []string{created.Note.ID, created.CID} {
		rec = s.do(http.MethodGet, BasePath+"/notes/"+key, nil)
		require.Equal(t, http.StatusOK, rec.Code, key)
		assert.Equal(t, 4, decode[handler.NoteResponse](t, rec).Note.Rating, key)
	}

	rec = s.do(http.MethodPatch, BasePath+"/notes/"+created.Note.ID, map[string]int{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, BasePath+"/notes", map[string][]string{"ids": {created.Note.ID, "00000000-0000-0000-0000-000000000000"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), decode[handler.DeleteNotesResponse](t, rec).DeletedCount)

	rec = s.do(http.MethodGet, BasePath+"/notes/"+created.Note.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, BasePath+"/notes/64b7f0c2e4b0a1a2b3c4d5e6", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the pinned file outlives its record
	_, ok = s.pinner.Get(created.CID)
	assert.True(t, ok)
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, BasePath+"/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	s.token = "not-a-token"
	rec = s.do(http.MethodGet, BasePath+"/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")

	foreign, _, err := auth.NewJWTService("other-secret", time.Hour).GenerateToken("u1", "alice")
	require.NoError(t, err)
	s.token = foreign
	rec = s.do(http.MethodGet, BasePath+"/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpload_Rejections(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, BasePath+"/register", map[string]string{"username": "bob", "password": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	s.token = decode[handler.AuthResponse](t, rec).Token

	rec = s.upload("Plain", "DS", "CS", "3", []byte("just text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.upload("", "DS", "CS", "3", pdf("untitled"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title")

	rec = s.upload("Huge", "DS", "CS", "3", pdf(strings.Repeat("x", 1<<20)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, s.pinner.Len())

	rec = s.do(http.MethodGet, BasePath+"/notes", nil)
	assert.Empty(t, decode[handler.ListNotesResponse](t, rec).Notes)
}

func TestAuthRateLimit(t *testing.T) {
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, authRateLimiter(1))

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests, fmt.Sprint(codes))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "denote_http_requests_total")
}

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, "2048K", bodyLimit(1<<20))
	assert.Equal(t, "1025K", bodyLimit(1))
}
