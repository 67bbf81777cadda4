package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/user"
)

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.Status, e.Message)
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// APIClient calls the REST endpoints as the token's user.
type APIClient struct {
	http *resty.Client
}

// NewAPIClient creates a client for baseURL, e.g. http://localhost:8080.
func NewAPIClient(baseURL, token string) *APIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)

	return &APIClient{http: client}
}

func call[T any](ctx context.Context, c *APIClient, method, path string, body any, query map[string]string) (T, error) {
	var out envelope[T]

	r := c.http.R().SetContext(ctx).SetResult(&out).SetError(&out)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if query != nil {
		r.SetQueryParams(query)
	}

	res, err := r.Execute(method, path)
	if err != nil {
		return out.Data, err
	}
	if res.IsError() || out.Code != 0 {
		return out.Data, &APIError{Status: res.StatusCode(), Code: out.Code, Message: out.Message}
	}
	return out.Data, nil
}

// Sync registers the token's profile with the server.
func (c *APIClient) Sync(ctx context.Context) (user.User, error) {
	data, err := call[struct {
		User user.User `json:"user"`
	}](ctx, c, resty.MethodPost, "/api/user/sync", nil, nil)
	return data.User, err
}

func (c *APIClient) Network(ctx context.Context) (graph.Network, error) {
	return call[graph.Network](ctx, c, resty.MethodGet, "/api/user/network", nil, nil)
}

func (c *APIClient) Status(ctx context.Context, userID string) (graph.PairState, error) {
	data, err := call[struct {
		Status graph.PairState `json:"status"`
	}](ctx, c, resty.MethodGet, "/api/user/status/"+userID, nil, nil)
	return data.Status, err
}

// target posts {"id": userID} to one of the relationship endpoints.
func (c *APIClient) target(ctx context.Context, action, userID string) error {
	_, err := call[map[string]any](ctx, c, resty.MethodPost, "/api/user/"+action, map[string]string{"id": userID}, nil)
	return err
}

func (c *APIClient) Follow(ctx context.Context, userID string) error {
	return c.target(ctx, "follow", userID)
}

func (c *APIClient) Unfollow(ctx context.Context, userID string) error {
	return c.target(ctx, "unfollow", userID)
}

func (c *APIClient) Connect(ctx context.Context, userID string) error {
	return c.target(ctx, "connect", userID)
}

func (c *APIClient) Accept(ctx context.Context, userID string) error {
	return c.target(ctx, "accept", userID)
}

func (c *APIClient) Decline(ctx context.Context, userID string) error {
	return c.target(ctx, "decline", userID)
}

// Send posts a text message to userID.
func (c *APIClient) Send(ctx context.Context, userID, text string) (chat.MessageView, error) {
	data, err := call[struct {
		Message chat.MessageView `json:"message"`
	}](ctx, c, resty.MethodPost, "/api/message/send", chat.SendInput{To: userID, Text: text}, nil)
	return data.Message, err
}

// Conversation fetches the conversation with userID. The server marks it as seen.
func (c *APIClient) Conversation(ctx context.Context, userID string) ([]chat.Message, error) {
	data, err := call[struct {
		Messages []chat.Message `json:"messages"`
	}](ctx, c, resty.MethodPost, "/api/message/get", map[string]string{"to_user_id": userID}, nil)
	return data.Messages, err
}

// Recent lists the latest received messages; limit <= 0 uses the server default.
func (c *APIClient) Recent(ctx context.Context, limit int) ([]chat.MessageView, error) {
	var query map[string]string
	if limit > 0 {
		query = map[string]string{"limit": strconv.Itoa(limit)}
	}
	data, err := call[struct {
		Messages []chat.MessageView `json:"messages"`
	}](ctx, c, resty.MethodGet, "/api/message/recent", nil, query)
	return data.Messages, err
}
