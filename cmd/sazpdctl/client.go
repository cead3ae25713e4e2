package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/privacyshield/sazpd-console/pkg/audit"
)

// apiPrefix is the console API base path.
const apiPrefix = "/api/sazpd/v1"

type consoleClient struct {
	baseURL string
	actor   string
	http    *http.Client
}

func newClient() *consoleClient {
	return &consoleClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		actor:   actorID,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError is the console's error body.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends a request and decodes a 2xx JSON response into v when v is non-nil.
func (c *consoleClient) do(method, path string, query url.Values, body, v any) error {
	resp, err := c.send(method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into errors. The
// caller closes the body of a successful response.
func (c *consoleClient) send(method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(audit.HeaderActorID, c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, e.Code, e.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// getJSON performs a GET request and decodes the response.
func (c *consoleClient) getJSON(path string, query url.Values, v any) error {
	return c.do(http.MethodGet, path, query, nil, v)
}

// postJSON performs a POST request with an optional JSON body.
func (c *consoleClient) postJSON(path string, body, v any) error {
	return c.do(http.MethodPost, path, nil, body, v)
}

// putJSON performs a PUT request with a JSON body.
func (c *consoleClient) putJSON(path string, body, v any) error {
	return c.do(http.MethodPut, path, nil, body, v)
}

// deleteJSON performs a DELETE request.
func (c *consoleClient) deleteJSON(path string, v any) error {
	return c.do(http.MethodDelete, path, nil, nil, v)
}

// download copies a GET response body to w.
func (c *consoleClient) download(path string, query url.Values, w io.Writer) error {
	resp, err := c.send(http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

// probe performs a GET request and decodes the JSON body whatever the status.
// Readiness answers 503 with a body worth showing.
func (c *consoleClient) probe(path string, v any) (int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode error: %w", err)
	}
	return resp.StatusCode, nil
}
