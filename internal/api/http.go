package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-retry"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/models"
)

const (
	defaultTimeout = 15 * time.Second

	// refreshLeeway refreshes the access token slightly before its exp claim
	// instead of waiting for a 401 round trip.
	refreshLeeway = 30 * time.Second

	// getRetries bounds backoff retries for idempotent GETs.
	getRetries = 2
)

// HTTPClient implements Client over the REST API. It is safe for concurrent
// use: the engine drives one shared client from foreground mutations,
// background revalidation goroutines, and queue drains at once.
type HTTPClient struct {
	baseURL string
	hc      *http.Client

	// mu guards the token pair. It is held across the refresh round trip,
	// so concurrent callers near expiry wait for one refresh instead of
	// issuing their own.
	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient returns a client rooted at baseURL (no trailing slash).
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: defaultTimeout},
	}
}

// SetTokens installs the bearer tokens obtained at login.
func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

func (c *HTTPClient) ListNotes(ctx context.Context, opts ListOptions, cond Conditional) (*NotesPage, error) {
	q := url.Values{}
	addFilterParams(q, opts.Filters)
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(opts.PerPage))
	}

	var page *NotesPage
	err := c.getWithRetry(ctx, "/notes?"+q.Encode(), cond, func(resp *http.Response) error {
		var body struct {
			Notes []*noteDTO `json:"notes"`
			Total int        `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode notes: %w", err)
		}
		page = &NotesPage{Total: body.Total, Validators: validatorsFrom(resp)}
		for _, d := range body.Notes {
			page.Notes = append(page.Notes, noteFromDTO(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *HTTPClient) CountNotes(ctx context.Context, filters models.NoteFilters) (int, error) {
	q := url.Values{}
	addFilterParams(q, filters)

	var count int
	err := c.getWithRetry(ctx, "/notes/count?"+q.Encode(), Conditional{}, func(resp *http.Response) error {
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode count: %w", err)
		}
		count = body.Count
		return nil
	})
	return count, err
}

func (c *HTTPClient) CreateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	var out *noteDTO
	if err := c.doJSON(ctx, http.MethodPost, "/notes", noteToDTO(n), &out); err != nil {
		return nil, err
	}
	return noteFromDTO(out), nil
}

func (c *HTTPClient) UpdateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	var out *noteDTO
	if err := c.doJSON(ctx, http.MethodPut, "/notes/"+url.PathEscape(n.ID), noteToDTO(n), &out); err != nil {
		return nil, err
	}
	return noteFromDTO(out), nil
}

func (c *HTTPClient) DeleteNote(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ListFolders(ctx context.Context, cond Conditional) (*FoldersPage, error) {
	var page *FoldersPage
	err := c.getWithRetry(ctx, "/folders", cond, func(resp *http.Response) error {
		var body struct {
			Folders []*folderDTO `json:"folders"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode folders: %w", err)
		}
		page = &FoldersPage{Validators: validatorsFrom(resp)}
		for _, d := range body.Folders {
			page.Folders = append(page.Folders, folderFromDTO(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *HTTPClient) CreateFolder(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	var out *folderDTO
	if err := c.doJSON(ctx, http.MethodPost, "/folders", folderToDTO(f), &out); err != nil {
		return nil, err
	}
	return folderFromDTO(out), nil
}

func (c *HTTPClient) UpdateFolder(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	var out *folderDTO
	if err := c.doJSON(ctx, http.MethodPut, "/folders/"+url.PathEscape(f.ID), folderToDTO(f), &out); err != nil {
		return nil, err
	}
	return folderFromDTO(out), nil
}

func (c *HTTPClient) DeleteFolder(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/folders/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// getWithRetry performs a conditional GET with fibonacci backoff on 5xx.
// Transport failures come back as common.ErrNetworkUnavailable immediately;
// the mutation queue owns longer-term retry bookkeeping.
func (c *HTTPClient) getWithRetry(ctx context.Context, path string, cond Conditional, handle func(*http.Response) error) error {
	backoff := retry.WithMaxRetries(getRetries, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.send(ctx, http.MethodGet, path, nil, cond)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotModified:
			return common.ErrNotModified
		case resp.StatusCode == http.StatusUnauthorized:
			return common.ErrUnauthorized
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("server error: %s", resp.Status))
		case resp.StatusCode >= http.StatusBadRequest:
			return fmt.Errorf("request failed: %s", resp.Status)
		}
		return handle(resp)
	})
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.send(ctx, method, path, body, Conditional{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body io.Reader, cond Conditional) (*http.Response, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	return resp, nil
}

// bearer returns the current access token, refreshing it first when its exp
// claim is inside the leeway window.
func (c *HTTPClient) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshIfExpiring(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// refreshIfExpiring parses the access token's exp claim and swaps tokens via
// the refresh endpoint before the old one lapses. Callers hold c.mu, so a
// waiting caller re-reads the exp claim after a finished refresh and skips
// its own.
func (c *HTTPClient) refreshIfExpiring(ctx context.Context) error {
	if c.accessToken == "" || c.refreshToken == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(c.accessToken, claims)
	if err != nil {
		return nil // opaque token; let the server decide
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Until(exp.Time) > refreshLeeway {
		return nil
	}

	b, err := json.Marshal(map[string]string{"refreshToken": c.refreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh failed: %s", resp.Status)
	}

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	c.accessToken = out.AccessToken
	c.refreshToken = out.RefreshToken
	return nil
}

func validatorsFrom(resp *http.Response) Validators {
	return Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
}

func addFilterParams(q url.Values, f models.NoteFilters) {
	if f.FolderID != nil {
		q.Set("folderId", *f.FolderID)
	}
	if f.Starred != nil {
		q.Set("starred", strconv.FormatBool(*f.Starred))
	}
	if f.Archived != nil {
		q.Set("archived", strconv.FormatBool(*f.Archived))
	}
	if f.Deleted != nil {
		q.Set("deleted", strconv.FormatBool(*f.Deleted))
	}
}
