// Package psp downloads open-data archives published by the Chamber of Deputies.
package psp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/source"
)

const (
	SourceID = "psp"
	// DefaultBaseURL is the publication root of the open-data archives.
	DefaultBaseURL = "https://www.psp.cz/eknih/cdrom/opendata"
)

// Config holds HTTP settings for the fetcher.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Fetcher implements source.Fetcher over HTTP.
type Fetcher struct {
	client *resty.Client
}

// NewFetcher creates a Fetcher. Server errors and transport failures are
// retried RetryCount times.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", "parlsync/1.0").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Fetcher{client: client}
}

// GetSourceID returns the unique identifier for this source.
func (f *Fetcher) GetSourceID() string {
	return SourceID
}

// Fetch downloads one archive from the base URL.
func (f *Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		Get("/" + name)
	if err != nil {
		return nil, &source.FetchError{Name: name, Err: err}
	}
	if resp.IsError() {
		return nil, &source.FetchError{
			Name:       name,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response %s", resp.Status()),
		}
	}

	body := resp.Body()
	logger.With(logger.Fields{
		logger.FieldArchive: name,
		"bytes":             len(body),
	}).WithSince(start).Info(ctx, "Archive downloaded")
	return body, nil
}
