package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
)

// ErrNotFound marks a 404-equivalent upstream answer. It is a normal
// "nothing to do", not a failure.
var ErrNotFound = errors.New("feed: not found")

// API is the upstream surface the scraper and orchestrator consume.
// Tests substitute a fake.
type API interface {
	GetLive() ([]LiveBroadcast, error)
	GetBroadcasts() ([]BroadcastDayList, error)
	GetBroadcastDetail(programKey string, day int) (*BroadcastDetail, error)
	DownloadBinary(url string) ([]byte, error)
}

type Client struct {
	baseURL   string
	userAgent string
	api       *retryablehttp.Client // live/list/detail fetches
	binary    *retryablehttp.Client // image downloads, longer timeout
}

func New(cfg *config.Config) *Client {
	// Feed.Attempts counts total tries; retryablehttp counts retries
	// after the first.
	retries := cfg.Feed.Attempts - 1
	if retries < 0 {
		retries = 0
	}

	api := retryablehttp.NewClient()
	api.RetryMax = retries
	api.Logger = nil
	api.HTTPClient.Timeout = cfg.FeedTimeout()

	binary := retryablehttp.NewClient()
	binary.RetryMax = retries
	binary.Logger = nil
	binary.HTTPClient.Timeout = cfg.ImageTimeout()

	return &Client{
		baseURL:   cfg.Feed.BaseURL,
		userAgent: cfg.Feed.UserAgent,
		api:       api,
		binary:    binary,
	}
}

func (c *Client) GetLive() ([]LiveBroadcast, error) {
	var live []LiveBroadcast
	if err := c.getJSON(c.baseURL+"/live", &live); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil // empty live view, no-op for the caller
		}
		return nil, err
	}
	for i := range live {
		live[i].State = NormalizeState(live[i].State)
		for j := range live[i].Items {
			live[i].Items[j].State = NormalizeState(live[i].Items[j].State)
		}
	}
	return live, nil
}

func (c *Client) GetBroadcasts() ([]BroadcastDayList, error) {
	var days []BroadcastDayList
	if err := c.getJSON(c.baseURL+"/broadcasts", &days); err != nil {
		return nil, err
	}
	return days, nil
}

func (c *Client) GetBroadcastDetail(programKey string, day int) (*BroadcastDetail, error) {
	url := fmt.Sprintf("%s/broadcast/%s/%d", c.baseURL, programKey, day)

	var detail BroadcastDetail
	if err := c.getJSON(url, &detail); err != nil {
		return nil, err
	}
	detail.State = NormalizeState(detail.State)
	for i := range detail.Items {
		detail.Items[i].State = NormalizeState(detail.Items[i].State)
	}
	return &detail, nil
}

// DownloadBinary fetches raw image bytes. The caller hashes the result;
// nothing about the URL is trusted for identity.
func (c *Client) DownloadBinary(url string) ([]byte, error) {
	req, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.binary.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: download %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(url string, out interface{}) error {
	req, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed: GET %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
