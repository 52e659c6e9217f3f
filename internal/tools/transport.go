package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/haasonsaas/kondate/pkg/models"
)

// HTTPTransport dispatches tool calls as JSON POSTs to the backend server
// that owns the tool. One base URL per server group.
type HTTPTransport struct {
	servers map[string]string // server group -> base URL
	client  *http.Client
	logger  *slog.Logger
}

// callEnvelope is the request body sent to a tool server.
type callEnvelope struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// NewHTTPTransport creates a transport over the configured server URLs.
func NewHTTPTransport(servers map[string]string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		servers: servers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Call posts the tool call to the owning server and decodes the unified
// {success, data?, error?} reply. The bearer token is forwarded verbatim.
func (t *HTTPTransport) Call(ctx context.Context, server, tool string, params map[string]any, authToken string) (*models.ToolResult, error) {
	base, ok := t.servers[server]
	if !ok {
		if base, ok = t.servers["default"]; !ok {
			return nil, fmt.Errorf("no server configured for group %q", server)
		}
	}

	body, err := json.Marshal(callEnvelope{Tool: tool, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode tool call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool call %s: %w", tool, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("tool call %s: read body: %w", tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool call %s: server %s returned %d", tool, server, resp.StatusCode)
	}

	result, err := models.DecodeToolResult(raw)
	if err != nil {
		return nil, fmt.Errorf("tool call %s: decode result: %w", tool, err)
	}

	t.logger.Debug("tool call completed",
		"tool", tool,
		"server", server,
		"success", result.Success,
		"elapsed", time.Since(start),
	)
	return result, nil
}
