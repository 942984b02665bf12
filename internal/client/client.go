// Package client provides an HTTP client for the backend twin's admin and
// test-support endpoints.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// AdminClient talks to a running twin-lucky instance.
type AdminClient struct {
	base string
	http *http.Client
}

// New creates an AdminClient for the twin at baseURL (for example
// "http://localhost:8080") with a 5-second timeout.
func New(baseURL string) *AdminClient {
	return &AdminClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Voucher is a freshly minted voucher.
type Voucher struct {
	Code   string `json:"code"`
	Points int    `json:"points"`
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health() (bool, string) {
	resp, err := c.http.Get(c.base + "/admin/health")
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK {
		return true, strings.TrimSpace(string(body))
	}
	return false, fmt.Sprintf("status %d: %s", resp.StatusCode, body)
}

// Reset calls POST /admin/reset, restoring the seeded demo data.
func (c *AdminClient) Reset() (string, error) {
	return c.post("/admin/reset", nil, http.StatusOK, "reset")
}

// Seed POSTs the contents of a JSON file to POST /admin/state.
func (c *AdminClient) Seed(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading seed file: %w", err)
	}
	return c.post("/admin/state", data, http.StatusOK, "seed")
}

// AdvanceTime moves the twin's clock forward, e.g. "25h" to expire tokens.
func (c *AdminClient) AdvanceTime(d time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]string{"duration": d.String()})
	return c.post("/admin/time/advance", body, http.StatusOK, "advance")
}

// Requests returns the twin's request log as raw JSON.
func (c *AdminClient) Requests() (string, error) {
	resp, err := c.http.Get(c.base + "/admin/requests")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("requests returned status %d: %s", resp.StatusCode, body)
	}
	return strings.TrimSpace(string(body)), nil
}

// MintVoucher creates a single-use voucher worth points.
func (c *AdminClient) MintVoucher(points int) (Voucher, error) {
	body, _ := json.Marshal(map[string]int{"points": points})
	out, err := c.post("/twin/vouchers", body, http.StatusCreated, "mint")
	if err != nil {
		return Voucher{}, err
	}
	var v Voucher
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return Voucher{}, fmt.Errorf("decoding voucher: %w", err)
	}
	return v, nil
}

func (c *AdminClient) post(path string, data []byte, want int, what string) (string, error) {
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return "", fmt.Errorf("%s returned status %d: %s", what, resp.StatusCode, body)
	}
	return strings.TrimSpace(string(body)), nil
}
