package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// ImgBB uploads through an imgbb-compatible API: multipart field "image",
// response {"data": {"url": ...}}.
type ImgBB struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

// NewImgBB creates a client for endpoint authenticated with apiKey.
func NewImgBB(endpoint, apiKey string) *ImgBB {
	return &ImgBB{
		Endpoint: endpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

type imgbbResponse struct {
	Data struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Upload posts the image and returns data.url.
func (c *ImgBB) Upload(ctx context.Context, img Image) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", img.Filename)
	if err != nil {
		return "", fmt.Errorf("imgbb: create form file failed: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", fmt.Errorf("imgbb: write file failed: %w", err)
	}
	w.Close()

	endpoint, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("imgbb: bad endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", c.APIKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &buf)
	if err != nil {
		return "", fmt.Errorf("imgbb: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("imgbb: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("imgbb: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result imgbbResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("imgbb: decode response failed: %w", err)
	}
	if result.Data.URL == "" {
		return "", fmt.Errorf("imgbb: response missing data.url")
	}
	return result.Data.URL, nil
}
