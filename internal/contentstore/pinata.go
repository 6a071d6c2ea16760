package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const pinFilePath = "/pinning/pinFileToIPFS"

// PinataPinner pins files through the Pinata HTTP API.
type PinataPinner struct {
	apiURL     string
	jwt        string
	httpClient *http.Client
}

// NewPinataPinner creates a Pinata backend. A nil client gets a 60s timeout client.
func NewPinataPinner(apiURL, jwt string, client *http.Client) *PinataPinner {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &PinataPinner{
		apiURL:     strings.TrimRight(apiURL, "/"),
		jwt:        jwt,
		httpClient: client,
	}
}

type pinFileResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pin uploads data as a multipart "file" part named name.
func (p *PinataPinner) Pin(ctx context.Context, name string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", pdfMIME)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}

	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+pinFilePath, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out pinFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata response without IpfsHash")
	}
	return out.IpfsHash, nil
}
