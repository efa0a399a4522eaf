package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/dependency"
	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/retry"
	"github.com/frederic-klein/fml/internal/version"
)

// DefaultURL is the public Factorio mod portal.
const DefaultURL = "https://mods.factorio.com"

// ErrNotFound is returned when the portal has no mod by that name.
var ErrNotFound = errors.New("mod not found")

// Client talks to the mod portal API.
type Client struct {
	baseURL  string
	cacheDir string
	cacheTTL time.Duration
	client   *http.Client
	retry    retry.Policy
	logger   *log.Logger

	mu   sync.Mutex
	mods map[string]*mod.Mod
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithCache stores the mod list under dir for ttl. An empty dir disables it.
func WithCache(dir string, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheDir = dir
		c.cacheTTL = ttl
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a portal client rooted at baseURL.
func NewClient(baseURL string, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		retry:   retry.Default,
		logger:  logger,
		mods:    make(map[string]*mod.Mod),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the portal root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type modListResponse struct {
	Results []mod.Entry `json:"results"`
}

type fullModResponse struct {
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	DownloadCount int64         `json:"downloads_count"`
	Releases      []releaseJSON `json:"releases"`
}

type releaseJSON struct {
	DownloadURL string   `json:"download_url"`
	FileName    string   `json:"file_name"`
	InfoJSON    infoJSON `json:"info_json"`
	Version     string   `json:"version"`
	SHA1        string   `json:"sha1"`
}

type infoJSON struct {
	FactorioVersion string   `json:"factorio_version"`
	Dependencies    []string `json:"dependencies"`
}

// FetchModList returns every mod available for gameVersion, most downloaded first.
func (c *Client) FetchModList(ctx context.Context, gameVersion string) ([]mod.Entry, error) {
	if entries, ok := c.readListCache(gameVersion); ok {
		c.logger.Debug("Using cached mod list", "game_version", gameVersion, "mods", len(entries))
		return entries, nil
	}

	q := url.Values{}
	q.Set("page_size", "max")
	q.Set("hide_deprecated", "true")
	if gameVersion != "" {
		q.Set("version", gameVersion)
	}
	apiURL := fmt.Sprintf("%s/api/mods?%s", c.baseURL, q.Encode())

	var resp modListResponse
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching mod list: %w", err)
	}
	mod.SortByDownloads(resp.Results)

	if err := c.writeListCache(gameVersion, resp.Results); err != nil {
		c.logger.Warn("Could not cache mod list", "err", err)
	}
	return resp.Results, nil
}

// FetchMod returns full details for name, including every release.
// Results are memoized for the lifetime of the client.
func (c *Client) FetchMod(ctx context.Context, name string) (*mod.Mod, error) {
	c.mu.Lock()
	m, ok := c.mods[name]
	c.mu.Unlock()
	if ok {
		return m, nil
	}

	apiURL := fmt.Sprintf("%s/api/mods/%s/full", c.baseURL, url.PathEscape(name))
	var resp fullModResponse
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("mod %s: %w", name, err)
	}

	m = c.convert(resp)
	c.mu.Lock()
	c.mods[name] = m
	c.mu.Unlock()
	return m, nil
}

// GetMod implements resolver.Fetcher.
func (c *Client) GetMod(ctx context.Context, name string) (*mod.Mod, error) {
	return c.FetchMod(ctx, name)
}

func (c *Client) convert(resp fullModResponse) *mod.Mod {
	m := &mod.Mod{
		Name:          resp.Name,
		Title:         resp.Title,
		Summary:       resp.Summary,
		DownloadCount: resp.DownloadCount,
		Releases:      make([]mod.Release, 0, len(resp.Releases)),
	}

	for _, r := range resp.Releases {
		v, err := version.Parse(r.Version)
		if err != nil {
			c.logger.Warn("Skipping release with unreadable version", "mod", resp.Name, "version", r.Version, "err", err)
			continue
		}

		deps, errs := dependency.ParseAll(r.InfoJSON.Dependencies)
		for _, err := range errs {
			c.logger.Warn("Skipping dependency", "mod", resp.Name, "release", v, "err", err)
		}

		m.Releases = append(m.Releases, mod.Release{
			DownloadURL:  r.DownloadURL,
			FileName:     r.FileName,
			Version:      v,
			GameVersion:  r.InfoJSON.FactorioVersion,
			SHA1:         r.SHA1,
			Dependencies: deps,
		})
	}
	return m
}

func (c *Client) getJSON(ctx context.Context, apiURL string, v any) error {
	return retry.Do(ctx, c.retry, c.logger, apiURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("querying mod portal: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(ErrNotFound)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("mod portal: HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("mod portal: HTTP %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return retry.Permanent(fmt.Errorf("parsing response: %w", err))
		}
		return nil
	})
}
