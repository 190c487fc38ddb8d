// Package storage talks to Supabase Storage over its REST API. It holds the
// lawyer credential documents (license scans, bar certificates) that admins
// review during verification; nothing else in the system touches object
// storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/config"
)

type Supabase struct {
	baseURL string // https://<project>.supabase.co
	apiKey  string // service_role key; never a client anon key
	bucket  string
	client  *http.Client
}

func NewSupabase() *Supabase {
	return &Supabase{
		baseURL: config.GetEnv("SUPABASE_URL", ""),
		apiKey:  config.GetEnv("SUPABASE_SERVICE_KEY", ""),
		bucket:  config.GetEnv("SUPABASE_BUCKET", "lawyer-documents"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// MakeObjectKey builds the per-lawyer object key: lawyer/<profileID>/<filename>.
// Keys are namespaced by profile so one lawyer's documents can be listed or
// purged without touching anyone else's.
func (s *Supabase) MakeObjectKey(lawyerProfileID, filename string) string {
	return path.Join("lawyer", lawyerProfileID, filename)
}

func (s *Supabase) objectURL(verb, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s%s/%s", s.baseURL, verb, s.bucket, key)
}

// do sends an authenticated request and fails on any non-2xx status.
func (s *Supabase) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("supabase %s %s: %s | %s", method, url, res.Status, string(msg))
	}
	return res, nil
}

// Upload stores a new object under key. Supabase rejects duplicate keys, so
// re-uploads of the same filename fail rather than overwrite.
func (s *Supabase) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	res, err := s.do(ctx, http.MethodPost, s.objectURL("", key), r, contentType)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// SignedURL mints a short-lived download link for an object. Documents are
// in a private bucket; this is the only way they leave it.
func (s *Supabase) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	payload, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})

	res, err := s.do(ctx, http.MethodPost, s.objectURL("sign/", key), bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}

	// The API returns a path relative to /storage/v1.
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

// Delete removes an object by key. Idempotent: a missing object is success.
func (s *Supabase) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL("", key), nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound || res.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(res.Body)
	return fmt.Errorf("supabase delete %s: %s | %s", key, res.Status, string(msg))
}
