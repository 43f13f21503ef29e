// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package buildkite reads builds and jobs from the Buildkite REST API.
package buildkite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"

	"hpc-ci-bridge/pkg/logging"
)

const (
	// DefaultEndpoint is the public REST API root.
	DefaultEndpoint = "https://api.buildkite.com/v2"
	// DefaultPerPage is the page size requested from the API.
	DefaultPerPage = 100
	// TimeFormat is how window bounds are sent to the API.
	TimeFormat = "2006-01-02T15:04:05Z"

	maxErrorBody = 4096
)

// Client lists jobs of one organization.
type Client struct {
	org        string
	endpoint   string
	perPage    int
	http       *http.Client
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at another API root.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithPerPage sets the page size.
func WithPerPage(n int) Option {
	return func(c *Client) { c.perPage = n }
}

// WithBackOff sets the retry policy used for each page.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// NewClient returns a client authenticating with a bearer token. ctx is only
// used to build the HTTP transport.
func NewClient(ctx context.Context, org, token string, opts ...Option) *Client {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = time.Minute
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	c := &Client{
		org:      org,
		endpoint: DefaultEndpoint,
		perPage:  DefaultPerPage,
		http:     oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActiveJobs yields the jobs of builds created since the given time that are
// still scheduled, running or failing.
func (c *Client) ActiveJobs(ctx context.Context, since time.Time) iter.Seq2[Job, error] {
	q := url.Values{"created_from": {since.UTC().Format(TimeFormat)}}
	for _, s := range ActiveStates {
		q.Add("state[]", s)
	}
	return c.jobs(ctx, q)
}

// CanceledJobs yields the jobs of builds canceled since the given time.
func (c *Client) CanceledJobs(ctx context.Context, since time.Time) iter.Seq2[Job, error] {
	q := url.Values{"finished_from": {since.UTC().Format(TimeFormat)}}
	for _, s := range CanceledStates {
		q.Add("state[]", s)
	}
	return c.jobs(ctx, q)
}

// Builds yields every build matching query, one page at a time. Iteration
// stops after the first error.
func (c *Client) Builds(ctx context.Context, query url.Values) iter.Seq2[Build, error] {
	return func(yield func(Build, error) bool) {
		for page := 1; ; page++ {
			builds, err := c.fetchPage(ctx, query, page)
			if err != nil {
				yield(Build{}, err)
				return
			}
			if len(builds) == 0 {
				return
			}
			for _, b := range builds {
				if !yield(b, nil) {
					return
				}
			}
		}
	}
}

func (c *Client) jobs(ctx context.Context, query url.Values) iter.Seq2[Job, error] {
	return func(yield func(Job, error) bool) {
		for b, err := range c.Builds(ctx, query) {
			if err != nil {
				yield(Job{}, err)
				return
			}
			ref := b.Ref()
			for _, j := range b.Jobs {
				j.Build = ref
				if !yield(j, nil) {
					return
				}
			}
		}
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("buildkite API returned %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *Client) fetchPage(ctx context.Context, query url.Values, page int) ([]Build, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.perPage))
	u := fmt.Sprintf("%s/organizations/%s/builds?%s", c.endpoint, url.PathEscape(c.org), q.Encode())

	op := func() ([]Build, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if apiErr.retryable() {
				return nil, apiErr
			}
			return nil, backoff.Permanent(apiErr)
		}

		var builds []Build
		if err := json.NewDecoder(resp.Body).Decode(&builds); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode builds page %d: %w", page, err))
		}
		return builds, nil
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn("Fetching builds page %d failed, retrying in %s: %v", page, wait, err)
	}

	builds, err := backoff.RetryNotifyWithData(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch builds page %d: %w", page, err)
	}
	return builds, nil
}
