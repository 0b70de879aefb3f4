// Package toolrpc calls the internal tool servers.
//
// Every call is a POST of {tool_name, parameters} to {base}/tools/call. The
// caller's role travels in a short-lived HS256 token in the X-Internal-Token
// header, never inside parameters. Failures are returned as *Error with a
// closed set of codes; raw response bodies never reach callers.
package toolrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	// TokenHeader carries the signed caller token.
	TokenHeader = "X-Internal-Token"

	// Subject identifies this service to the tool servers.
	Subject = "ai-orchestrator"

	DefaultTimeout = 5 * time.Second
	tokenTTL       = 60 * time.Second
)

// ErrorCode is the closed set of RPC failure codes.
type ErrorCode string

const (
	CodeCallFailed      ErrorCode = "tool_call_failed"
	CodeNetworkFailure  ErrorCode = "tool_network_failure"
	CodeInternalFailure ErrorCode = "tool_internal_failure"
)

// Error is returned by Call on any failure.
type Error struct {
	Code   ErrorCode
	Tool   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Tool, e.Code, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Caller is the identity asserted to the tool server.
type Caller struct {
	Role   string
	UserID string
}

// Claims is the payload of the internal token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	UID  string `json:"uid,omitempty"`
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	secret   []byte
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time
}

// New builds a client. An empty BaseURL yields a disabled client whose
// Enabled reports false.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base != "" && cfg.Secret == "" {
		return nil, errors.New("toolrpc: secret is required when a base url is set")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{
		secret:  []byte(cfg.Secret),
		timeout: timeout,
		client:  hc,
		now:     time.Now,
	}
	if base != "" {
		c.endpoint = base + "/tools/call"
	}
	return c, nil
}

// Enabled reports whether a tool server is configured.
func (c *Client) Enabled() bool { return c != nil && c.endpoint != "" }

type callRequest struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

type callResponse struct {
	Result map[string]interface{} `json:"result"`
}

// Call invokes one tool and returns its result map.
func (c *Client) Call(ctx context.Context, tool string, params map[string]interface{}, caller Caller) (map[string]interface{}, error) {
	if !c.Enabled() {
		return nil, &Error{Code: CodeNetworkFailure, Tool: tool, Err: errors.New("tool server not configured")}
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	token, err := c.Sign(caller)
	if err != nil {
		return nil, &Error{Code: CodeInternalFailure, Tool: tool, Err: err}
	}
	body, err := json.Marshal(callRequest{ToolName: tool, Parameters: params})
	if err != nil {
		return nil, &Error{Code: CodeInternalFailure, Tool: tool, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeInternalFailure, Tool: tool, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(TokenHeader, token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Code: CodeNetworkFailure, Tool: tool, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().
			Str("tool", tool).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Tool server returned non-200")
		return nil, &Error{Code: CodeCallFailed, Tool: tool, Status: resp.StatusCode}
	}

	var out callResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, &Error{Code: CodeNetworkFailure, Tool: tool, Err: err}
		}
		return nil, &Error{Code: CodeInternalFailure, Tool: tool, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Result == nil {
		return nil, &Error{Code: CodeInternalFailure, Tool: tool, Err: errors.New("response has no result")}
	}
	return out.Result, nil
}

// Sign issues the internal token for caller.
func (c *Client) Sign(caller Caller) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Role: caller.Role,
		UID:  caller.UserID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyToken parses and validates an internal token. Tool servers and tests
// use it to check the asserted role.
func VerifyToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithSubject(Subject))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
