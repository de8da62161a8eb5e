package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepnoodle-ai/greenlight"
)

// HTTPExecutor makes HTTP requests. The response is returned as an object
// output so downstream conditions can route on status and body fields.
type HTTPExecutor struct {
	client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{}
}

func (e *HTTPExecutor) Type() string {
	return "http"
}

func (e *HTTPExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	url := configString(node, "url")
	if url == "" {
		return nil, fmt.Errorf("http requires 'url' parameter")
	}
	method := strings.ToUpper(configString(node, "method"))
	if method == "" {
		method = "GET"
	}

	var bodyReader io.Reader
	if payload, ok := configValue(node, "json_payload").(map[string]any); ok {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	} else if body := configString(node, "body"); body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range configStringMap(node, "headers") {
		req.Header.Set(key, value)
	}
	if _, ok := configValue(node, "json_payload").(map[string]any); ok && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.client
	if client == nil {
		timeout := 30 * time.Second
		if seconds, ok := configValue(node, "timeout").(float64); ok && seconds > 0 {
			timeout = time.Duration(seconds * float64(time.Second))
		}
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"body":        string(respBody),
		"success":     resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var jsonResp map[string]any
		if err := json.Unmarshal(respBody, &jsonResp); err == nil {
			output["json"] = jsonResp
		}
	}

	if resp.StatusCode >= 500 {
		// Server errors are worth retrying when the node configures retries
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}
	return greenlight.Success(output), nil
}
