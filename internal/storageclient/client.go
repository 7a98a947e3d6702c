package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound distinguishes "the document has never been written" from "the
// document is empty". First-time-user detection depends on this distinction.
var ErrNotFound = errors.New("document not found")

// Preferences is the versioned user-preference document.
type Preferences struct {
	Version           int    `json:"version"`
	PreferStableToken bool   `json:"preferStableToken"`
	DefaultModel      string `json:"defaultModel"`
}

// Client is the external durable-storage collaborator (S5-style gateway).
type Client interface {
	LoadConversation(ctx context.Context, key string) ([]byte, error)
	SaveConversation(ctx context.Context, key string, data []byte) error
	LoadPreferences(ctx context.Context, owner string) (*Preferences, error)
	SavePreferences(ctx context.Context, owner string, prefs *Preferences) error
}

// HTTPClient talks to a storage gateway over plain HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a gateway client bounded by timeout per request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build storage request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "storage request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("storage gateway returned http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) put(ctx context.Context, path string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to build storage request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "storage request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("storage gateway returned http %d", resp.StatusCode)
	}
	return nil
}

// LoadConversation fetches a stored conversation document.
func (c *HTTPClient) LoadConversation(ctx context.Context, key string) ([]byte, error) {
	return c.get(ctx, "/v1/conversations/"+key)
}

// SaveConversation stores a conversation document.
func (c *HTTPClient) SaveConversation(ctx context.Context, key string, data []byte) error {
	return c.put(ctx, "/v1/conversations/"+key, data)
}

// LoadPreferences fetches the owner's versioned preference document.
// ErrNotFound means first-time user; callers apply defaults.
func (c *HTTPClient) LoadPreferences(ctx context.Context, owner string) (*Preferences, error) {
	data, err := c.get(ctx, "/v1/preferences/"+owner)
	if err != nil {
		return nil, err
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal preferences")
	}
	return &prefs, nil
}

// SavePreferences stores the owner's preference document.
func (c *HTTPClient) SavePreferences(ctx context.Context, owner string, prefs *Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal preferences")
	}
	return c.put(ctx, "/v1/preferences/"+owner, data)
}
