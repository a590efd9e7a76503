package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// PerformLogout posts {token, reason} to endpoint and reports whether the
// server acknowledged it with a 2xx status. A nil client means http.DefaultClient.
func PerformLogout(ctx context.Context, client *http.Client, endpoint, token, reason string) bool {
	if token == "" || endpoint == "" {
		return false
	}
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(LogoutPayload{Token: token, Reason: reason})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
