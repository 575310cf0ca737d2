// Package marketdata is a small client for the Polygon REST API, used to
// mark open trades against the last traded price.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	APIKey     string
	HTTPClient *http.Client
	BaseURL    string
}

func NewClient(key string) *Client {
	return &Client{
		APIKey:     key,
		HTTPClient: &http.Client{Timeout: time.Second * 10},
		BaseURL:    "https://api.polygon.io",
	}
}

// every polygon response carries these
type StandardResp struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func (sr StandardResp) ok() bool {
	return sr.Status == "OK" || sr.Status == "DELAYED"
}

func (sr StandardResp) errMsg() string {
	if sr.Error != "" {
		return sr.Error
	}
	return sr.Message
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	if c.APIKey == "" {
		return fmt.Errorf("please set a polygon API key")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create http request, %v", err)
	}
	req.Header.Add("Authorization", "Bearer "+c.APIKey)

	return c.request(req, dst)
}

func (c *Client) request(req *http.Request, dst any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to place request, %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read body, %v", err)
	}

	var standardResp StandardResp
	err = json.Unmarshal(bodyBytes, &standardResp)
	if err != nil {
		bodyString := string(bodyBytes)
		return fmt.Errorf("failed to marshall body: (%s) into standard response, %v", bodyString, err)
	}

	if resp.StatusCode != 200 || !standardResp.ok() {
		return fmt.Errorf("api error, status %d, error: %s %s", resp.StatusCode, standardResp.Status, standardResp.errMsg())
	}

	if dst != nil {
		err = json.Unmarshal(bodyBytes, dst)
		if err != nil {
			return fmt.Errorf("failed to unmarshall into dst, %v", err)
		}
	}

	return nil
}
