package deploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client triggers the deployment orchestrator's webhook for one resource.
// The endpoint contract is a single GET with uuid and force query params
// and a bearer token; anything outside 2xx fails the deploy stage.
type Client struct {
	http         *http.Client
	endpoint     string
	resourceUUID string
	token        string
}

func New(endpoint, resourceUUID, token string) *Client {
	return &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		endpoint:     endpoint,
		resourceUUID: resourceUUID,
		token:        token,
	}
}

// Trigger issues the deploy request. No retries: the pipeline aborts on
// failure and a retry re-runs the whole stage.
func (c *Client) Trigger(ctx context.Context, force bool) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("deploy endpoint: %w", err)
	}
	q := u.Query()
	q.Set("uuid", c.resourceUUID)
	q.Set("force", strconv.FormatBool(force))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deploy webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deploy webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
