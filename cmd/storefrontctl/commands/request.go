package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-gateway/internal/session"
)

var client = &http.Client{Timeout: 30 * time.Second}

// doRequest calls the gateway with the session carried in the
// Storefront-Session header, decodes the JSON response into out and picks
// up the cart id the gateway hands back.
func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, gatewayURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if header, err := session.FormatHeader(country, cartID); err != nil {
		return fmt.Errorf("building session header: %w", err)
	} else if header != "" {
		req.Header.Set(session.Header, header)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if raw := resp.Header.Get(session.Header); raw != "" {
		if c, cart, err := session.ParseHeader(raw); err == nil {
			if c != "" {
				country = c
			}
			if cart != "" {
				cartID = cart
			}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
