package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
)

// Well-known paths on remote agents.
const (
	agentCardPath = "/.well-known/agent-card.json"
	healthPath    = "/health"
)

const maxErrorBodyBytes = 512

// Client talks the A2A protocol to remote specialist agents: card
// resolution, health probing, and JSON-RPC task dispatch.
type Client struct {
	http   *http.Client
	bearer string
	logger *slog.Logger
}

// NewClient builds an outbound agent client. bearer may be empty, in which
// case no Authorization header is sent.
func NewClient(cfg config.ClientConfig, bearer string, logger *slog.Logger) *Client {
	return &Client{
		http:   NewHTTPClient(cfg),
		bearer: bearer,
		logger: logger,
	}
}

// Probe performs a best-effort liveness check against addr. Any 2xx counts
// as healthy; everything else, including transport failure, is returned as
// a classified error so callers can log the reason.
func (c *Client) Probe(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+healthPath, nil)
	if err != nil {
		return domain.NewDomainError("a2a.probe", domain.ErrInvalidInput, err.Error())
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError("a2a.probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus("a2a.probe", resp.StatusCode, nil)
	}
	return nil
}

// ResolveCard fetches and parses the agent card advertised at addr.
func (c *Client) ResolveCard(ctx context.Context, addr string) (*domain.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+agentCardPath, nil)
	if err != nil {
		return nil, domain.NewDomainError("a2a.resolve_card", domain.ErrInvalidInput, err.Error())
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError("a2a.resolve_card", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, classifyStatus("a2a.resolve_card", resp.StatusCode, body)
	}

	var card domain.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, domain.NewDomainError("a2a.resolve_card", domain.ErrProtocol, "malformed agent card: "+err.Error())
	}
	if card.Name == "" {
		return nil, domain.NewDomainError("a2a.resolve_card", domain.ErrProtocol, "agent card missing name")
	}
	return &card, nil
}

// Open returns a connection bound to one remote endpoint. Connections are
// cheap handles over the shared pooled client and safe for concurrent use.
func (c *Client) Open(endpoint string) domain.AgentConnection {
	return &conn{client: c, endpoint: strings.TrimRight(endpoint, "/")}
}

func (c *Client) authorize(req *http.Request) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
}

// conn sends tasks to a single remote agent endpoint.
type conn struct {
	client   *Client
	endpoint string
}

// JSON-RPC envelope types for the message/send method.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Message domain.TaskMessage `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *domain.Task    `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendTask implements domain.AgentConnection. The call blocks until the
// remote agent has finished the task or the client's total timeout expires.
func (cn *conn) SendTask(ctx context.Context, msg domain.TaskMessage) (*domain.Task, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      ulid.Make().String(),
		Method:  "message/send",
		Params:  rpcParams{Message: msg},
	})
	if err != nil {
		return nil, domain.NewDomainError("a2a.send_task", domain.ErrInvalidInput, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cn.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewDomainError("a2a.send_task", domain.ErrInvalidInput, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	cn.client.authorize(req)

	resp, err := cn.client.http.Do(req)
	if err != nil {
		return nil, classifyTransportError("a2a.send_task", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, classifyStatus("a2a.send_task", resp.StatusCode, body)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, domain.NewDomainError("a2a.send_task", domain.ErrProtocol, "malformed response: "+err.Error())
	}
	if rpc.Error != nil {
		return nil, domain.NewDomainError("a2a.send_task", domain.ErrProtocol,
			fmt.Sprintf("remote error %d: %s", rpc.Error.Code, rpc.Error.Message))
	}
	if rpc.Result == nil {
		return nil, domain.NewDomainError("a2a.send_task", domain.ErrProtocol, "response missing result")
	}
	return rpc.Result, nil
}

// classifyTransportError maps a transport-level failure onto a domain
// sentinel. Timeouts are distinguished from refused or reset connections so
// the discovery report can tell a slow agent from an absent one.
func classifyTransportError(op string, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return domain.NewDomainError(op, domain.ErrTimeout, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDomainError(op, domain.ErrTimeout, err.Error())
	}
	return domain.NewDomainError(op, domain.ErrConnection, err.Error())
}

// classifyStatus maps a non-2xx HTTP status onto a domain sentinel.
func classifyStatus(op string, status int, body []byte) error {
	detail := fmt.Sprintf("status %d", status)
	if len(body) > 0 {
		detail += ": " + string(body)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewDomainError(op, domain.ErrOverloaded, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewDomainError(op, domain.ErrAuthInvalid, detail)
	default:
		return domain.NewDomainError(op, domain.ErrProtocol, detail)
	}
}

var _ domain.AgentConnection = (*conn)(nil)
