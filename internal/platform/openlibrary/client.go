package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://openlibrary.org"

	maxResponseBytes = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoData is returned when Open Library has no record for the ISBN.
var ErrNoData = errors.New("openlibrary: no data for isbn")

// StatusError reports a non-200 answer from Open Library.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openlibrary: unexpected status code: %d", e.StatusCode)
}

type Config struct {
	BaseURL   string
	UserAgent string
	// RPS caps outbound requests per second; values below 1 mean 1.
	RPS int
	// HTTPClient defaults to a client without its own timeout. Callers bound
	// each request through the context.
	HTTPClient *http.Client
}

type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RPS < 1 {
		cfg.RPS = 1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RPS)), 1),
	}
}

type Publisher struct {
	Name string `json:"name"`
}

type Author struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// BookDetails matches api/books?jscmd=data
type BookDetails struct {
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle"`
	Publishers  []Publisher `json:"publishers"`
	PublishDate string      `json:"publish_date"`
	Cover       struct {
		Large string `json:"large"`
	} `json:"cover"`
	Authors       []Author `json:"authors"`
	NumberOfPages int      `json:"number_of_pages"`
	Notes         string   `json:"notes"`
}

// AuthorName returns the first non-blank author name.
func (d *BookDetails) AuthorName() string {
	for _, a := range d.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			return name
		}
	}
	return ""
}

// PublishedOn parses the free-text publish date.
func (d *BookDetails) PublishedOn() (time.Time, bool) {
	return ParsePublishDate(d.PublishDate)
}

// GetBookByISBN fetches the edition data for a single ISBN. A response that
// does not contain the requested bibkey yields ErrNoData.
func (c *Client) GetBookByISBN(ctx context.Context, isbn string) (*BookDetails, error) {
	bibkey := "ISBN:" + isbn
	u := fmt.Sprintf("%s/api/books?bibkeys=%s&jscmd=data&format=json", c.baseURL, url.QueryEscape(bibkey))

	var res map[string]BookDetails
	if err := c.get(ctx, u, &res); err != nil {
		return nil, err
	}
	details, ok := res[bibkey]
	if !ok {
		return nil, ErrNoData
	}
	return &details, nil
}

func (c *Client) get(ctx context.Context, u string, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openlibrary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(target); err != nil {
		return fmt.Errorf("openlibrary: decode response: %w", err)
	}
	return nil
}
