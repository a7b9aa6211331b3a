// Package zapier connects to a Zapier MCP endpoint that fronts the back
// office automations (Google Sheets rows, calendar bookings). The chat
// service hands it the hidden data blocks stripped from agent output.
package zapier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"repair-agent/internal/logging"
)

// Client holds one long-lived MCP session against the Zapier endpoint.
type Client struct {
	client    *mcp.Client
	session   *mcp.ClientSession
	logger    logging.Logger
	toolIndex map[string]struct{}
}

// Config configures the Zapier MCP client.
type Config struct {
	// EndpointURL is the Zapier MCP server URL.
	EndpointURL string
	// APIKey authenticates the session, when the endpoint requires it.
	APIKey string
	Logger logging.Logger
}

// New creates a Client and connects to the MCP server, discovering the
// available tools once up front.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.EndpointURL == "" {
		return nil, errors.New("zapier: EndpointURL is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("zapier: Logger is required")
	}

	httpClient := http.DefaultClient
	if cfg.APIKey != "" {
		httpClient = &http.Client{
			Transport: &authTransport{base: http.DefaultTransport, apiKey: cfg.APIKey},
		}
	}
	transport := &mcp.StreamableClientTransport{
		Endpoint:   cfg.EndpointURL,
		HTTPClient: httpClient,
	}

	impl := &mcp.Implementation{
		Name:    "repair-agent",
		Version: "1.0.0",
	}
	client := mcp.NewClient(impl, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("zapier: connect to MCP endpoint: %w", err)
	}

	c := &Client{
		client:    client,
		session:   session,
		logger:    cfg.Logger,
		toolIndex: make(map[string]struct{}),
	}
	if err := c.discoverTools(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) discoverTools(ctx context.Context) error {
	res, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("zapier: list tools: %w", err)
	}
	for _, tool := range res.Tools {
		c.toolIndex[tool.Name] = struct{}{}
	}
	c.logger.WithField("tools", len(c.toolIndex)).Info("Connected to Zapier MCP endpoint")
	return nil
}

// Dispatch forwards one hidden data block to its recording tool. The tool
// name is derived from the block kind: CUSTOMER -> record_customer, etc.
func (c *Client) Dispatch(ctx context.Context, kind, payload string) (string, error) {
	tool := "record_" + strings.ToLower(strings.TrimSpace(kind))
	if _, ok := c.toolIndex[tool]; !ok {
		return "", fmt.Errorf("zapier: no tool %q on MCP endpoint", tool)
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		// Not every block payload is a JSON object; pass it through raw.
		args = map[string]any{"data": payload}
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("zapier: call tool %q: %w", tool, err)
	}

	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	out := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("zapier: tool %q returned an error: %s", tool, out)
	}
	return out, nil
}

// Close shuts down the MCP session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// authTransport injects the API key on every MCP request.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(cloned)
}
