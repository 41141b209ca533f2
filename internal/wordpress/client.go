package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"wp_schema_sync/internal/model"

	"github.com/rs/zerolog/log"
)

// Client talks to the WordPress REST API of any number of sites. Credentials
// travel with each call as a model.Account; the client itself holds none.
type Client struct {
	client       *http.Client
	apiCallCount int64
	apiCallMutex sync.Mutex
}

// NewClient builds a client. A zero timeout leaves requests unbounded.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IncrementAPICall safely increments the API call counter
func (c *Client) IncrementAPICall() {
	c.apiCallMutex.Lock()
	c.apiCallCount++
	c.apiCallMutex.Unlock()
}

// GetAPICallCount returns the current API call count
func (c *Client) GetAPICallCount() int64 {
	c.apiCallMutex.Lock()
	defer c.apiCallMutex.Unlock()
	return c.apiCallCount
}

// APIRoot turns a site or API base URL into the wp/v2 root.
//
//	https://site.com              -> https://site.com/wp-json/wp/v2
//	https://site.com/wp-json      -> https://site.com/wp-json/wp/v2
//	https://site.com/wp-json/wp/v2 stays as is
func APIRoot(baseURL string) string {
	root := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.Contains(root, "/wp-json/"):
		return root
	case strings.HasSuffix(root, "/wp-json"):
		return root + "/wp/v2"
	default:
		return root + "/wp-json/wp/v2"
	}
}

// FindBySlug lists at most one entity of the collection with the given slug.
func (c *Client) FindBySlug(ctx context.Context, acct model.Account, collection, slug string) ([]EntityRef, error) {
	query := url.Values{}
	query.Set("per_page", "1")
	query.Set("slug", slug)

	body, err := c.do(ctx, acct, http.MethodGet, "/"+collection, query, nil)
	if err != nil {
		return nil, err
	}

	var refs []EntityRef
	if err := json.Unmarshal(body, &refs); err != nil {
		return nil, fmt.Errorf("failed to decode %s listing: %w", collection, err)
	}
	return refs, nil
}

// GetSettings fetches the site settings; it needs an account allowed to manage options.
func (c *Client) GetSettings(ctx context.Context, acct model.Account) (*Settings, error) {
	body, err := c.do(ctx, acct, http.MethodGet, "/settings", nil, nil)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal(body, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &settings, nil
}

// GetEntity fetches one post, page or category.
func (c *Client) GetEntity(ctx context.Context, acct model.Account, collection string, id int) (*Entity, error) {
	body, err := c.do(ctx, acct, http.MethodGet, "/"+collection+"/"+strconv.Itoa(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode %s %d: %w", collection, id, err)
	}
	return &entity, nil
}

// Patch sends payload as a JSON PATCH to the entity. Only a 200 counts as success.
func (c *Client) Patch(ctx context.Context, acct model.Account, collection string, id int, payload any) error {
	_, err := c.do(ctx, acct, http.MethodPatch, "/"+collection+"/"+strconv.Itoa(id), nil, payload)
	return err
}

func (c *Client) do(ctx context.Context, acct model.Account, method, path string, query url.Values, payload any) ([]byte, error) {
	endpoint := APIRoot(acct.BaseURL) + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := EncodeJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authorize(req, acct)

	log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Str("site", acct.Site).
		Msg("Calling WordPress API")

	c.IncrementAPICall()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Debug().
			Int("status_code", resp.StatusCode).
			Str("response_body", preview(body)).
			Msg("Non-200 response from WordPress")
		return nil, newAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func authorize(req *http.Request, acct model.Account) {
	switch {
	case acct.Token != "":
		req.Header.Set("Authorization", "Bearer "+acct.Token)
	case acct.Username != "":
		// application passwords are shown with spaces; WordPress accepts either form
		req.SetBasicAuth(acct.Username, strings.ReplaceAll(acct.AppPassword, " ", ""))
	}
}

func preview(body []byte) string {
	return string(body[:min(500, len(body))])
}
