// Package client is a Go client for the DeNote API, plus the local session
// storage used by the denote CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"denote/internal/model"
)

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/denote"

const genericErrorMessage = "something went wrong, please try again"

// APIError is a non-2xx response. Message is the server's error text, or a
// generic fallback when the response carried none.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client calls the DeNote API. It never retries.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, authenticating with token
// when it is not empty.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// NoteDetail is a note with its gateway URL.
type NoteDetail struct {
	Note *model.Note `json:"note"`
	URL  string      `json:"url"`
}

// Upload describes a file to upload with its metadata.
type Upload struct {
	Title    string
	Subject  string
	Branch   string
	Sem      string
	Uploader string
	Filename string
	File     io.Reader
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	var res AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/register", credentials{username, password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var res AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/login", credentials{username, password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Profile returns the logged-in user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var res struct {
		User *model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/profile", nil, &res); err != nil {
		return nil, err
	}
	return res.User, nil
}

// UploadNote sends the file as multipart form data and returns the new note.
func (c *Client) UploadNote(ctx context.Context, up Upload) (*model.Note, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range []struct{ name, value string }{
		{"title", up.Title},
		{"subject", up.Subject},
		{"branch", up.Branch},
		{"sem", up.Sem},
		{"uploader", up.Uploader},
	} {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile("File_Note", up.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, up.File); err != nil {
		return nil, fmt.Errorf("read %s: %w", up.Filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var res struct {
		CID  string      `json:"cid"`
		Note *model.Note `json:"note"`
	}
	if err := c.do(ctx, http.MethodPost, "/notes", body, w.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return res.Note, nil
}

// ListNotes returns notes matching filter, newest first.
func (c *Client) ListNotes(ctx context.Context, filter model.NoteFilter) ([]model.Note, error) {
	q := url.Values{}
	for k, v := range map[string]string{"branch": filter.Branch, "sem": filter.Sem, "subject": filter.Subject} {
		if v != "" {
			q.Set(k, v)
		}
	}
	path := "/notes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res struct {
		Notes []model.Note `json:"notes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Notes, nil
}

// GetNote fetches a note by database id or CID.
func (c *Client) GetNote(ctx context.Context, key string) (*NoteDetail, error) {
	var res NoteDetail
	if err := c.doJSON(ctx, http.MethodGet, "/notes/"+url.PathEscape(key), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RateNote sets the rating of a note.
func (c *Client) RateNote(ctx context.Context, id string, rating int) (*model.Note, error) {
	var res NoteDetail
	req := struct {
		Rating int `json:"rating"`
	}{rating}
	if err := c.doJSON(ctx, http.MethodPatch, "/notes/"+url.PathEscape(id), req, &res); err != nil {
		return nil, err
	}
	return res.Note, nil
}

// DeleteNotes deletes notes and returns how many existed.
func (c *Client) DeleteNotes(ctx context.Context, ids []string) (int64, error) {
	var res struct {
		DeletedCount int64 `json:"deletedCount"`
	}
	req := struct {
		IDs []string `json:"ids"`
	}{ids}
	if err := c.doJSON(ctx, http.MethodDelete, "/notes", req, &res); err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: genericErrorMessage}
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Message != "":
			apiErr.Message = body.Message
		}
		apiErr.Code = body.Code
	}
	return apiErr
}
