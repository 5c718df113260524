// Package mediaupload defines the upload-service boundary consumed by
// internal/media's MediaCache (spec §4.4, §6) and provides concrete
// implementations grounded on
// _examples/original_source/utils/media_cache.py's _upload_to_litterbox,
// _upload_to_catbox, and _upload_to_pixeldrain.
package mediaupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Service uploads a file's bytes and returns a durable URL. ExpiresAt is zero
// for permanent services, or a unix timestamp for services that expire
// content (§4.4 step 7).
type Service interface {
	Name() string
	Upload(ctx context.Context, filename string, data []byte) (url string, expiresAt int64, err error)
}

// httpClient is the minimal surface Service implementations need; satisfied
// by *http.Client, and swappable in tests.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// LitterboxExpiry matches the original implementation's temporary-storage
// retention window (§4.4).
const LitterboxExpiry = 72 * time.Hour

const defaultLitterboxEndpoint = "https://litterbox.catbox.moe/resources/internals/api.php"

// LitterboxService uploads to catbox.moe's temporary litterbox endpoint via
// a multipart form POST, matching _upload_to_litterbox.
type LitterboxService struct {
	Client   httpClient
	Endpoint string // defaults to defaultLitterboxEndpoint when empty
}

func NewLitterboxService(client *http.Client) *LitterboxService {
	return &LitterboxService{Client: client}
}

func (s *LitterboxService) endpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return defaultLitterboxEndpoint
}

func (s *LitterboxService) Name() string { return "litterbox" }

func (s *LitterboxService) Upload(ctx context.Context, filename string, data []byte) (string, int64, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("reqtype", "fileupload"); err != nil {
		return "", 0, err
	}
	if err := w.WriteField("time", "72h"); err != nil {
		return "", 0, err
	}
	part, err := w.CreateFormFile("fileToUpload", filename)
	if err != nil {
		return "", 0, err
	}
	if _, err := part.Write(data); err != nil {
		return "", 0, err
	}
	if err := w.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("mediaupload: litterbox returned %d", resp.StatusCode)
	}
	urlBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	return string(bytes.TrimSpace(urlBytes)), time.Now().Add(LitterboxExpiry).Unix(), nil
}

const defaultCatboxEndpoint = "https://catbox.moe/user/api.php"

// CatboxService uploads permanently to catbox.moe via multipart form POST,
// matching _upload_to_catbox.
type CatboxService struct {
	Client   httpClient
	Endpoint string // defaults to defaultCatboxEndpoint when empty
}

func NewCatboxService(client *http.Client) *CatboxService {
	return &CatboxService{Client: client}
}

func (s *CatboxService) endpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return defaultCatboxEndpoint
}

func (s *CatboxService) Name() string { return "catbox" }

func (s *CatboxService) Upload(ctx context.Context, filename string, data []byte) (string, int64, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("reqtype", "fileupload"); err != nil {
		return "", 0, err
	}
	part, err := w.CreateFormFile("fileToUpload", filename)
	if err != nil {
		return "", 0, err
	}
	if _, err := part.Write(data); err != nil {
		return "", 0, err
	}
	if err := w.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("mediaupload: catbox returned %d", resp.StatusCode)
	}
	urlBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	return string(bytes.TrimSpace(urlBytes)), 0, nil
}

// pixeldrainResponse is the JSON body pixeldrain's upload endpoint returns.
type pixeldrainResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

const defaultPixeldrainEndpoint = "https://pixeldrain.com/api/file"

// PixeldrainService uploads permanently to pixeldrain.com via an
// authenticated PUT, matching _upload_to_pixeldrain.
type PixeldrainService struct {
	Client   httpClient
	APIKey   string
	Endpoint string // defaults to defaultPixeldrainEndpoint when empty
}

func NewPixeldrainService(client *http.Client, apiKey string) *PixeldrainService {
	return &PixeldrainService{Client: client, APIKey: apiKey}
}

func (s *PixeldrainService) endpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return defaultPixeldrainEndpoint
}

func (s *PixeldrainService) Name() string { return "pixeldrain" }

func (s *PixeldrainService) Upload(ctx context.Context, filename string, data []byte) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/%s", s.endpoint(), filename), bytes.NewReader(data))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth("", s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", 0, fmt.Errorf("mediaupload: pixeldrain returned %d", resp.StatusCode)
	}

	var out pixeldrainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, err
	}
	if !out.Success || out.ID == "" {
		return "", 0, fmt.Errorf("mediaupload: pixeldrain did not return a file id")
	}
	return fmt.Sprintf("https://pixeldrain.com/u/%s", out.ID), 0, nil
}
