// Package rest implements the backend contract over HTTP and JSON.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/errors"
	"guide-chat/infrastructure/wire"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

const maxErrorBody = 512

var _ contract.Backend = (*Client)(nil)

type Client struct {
	log     *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) ListConversations(ctx context.Context, session domain.Session) ([]domain.Conversation, error) {
	var dtos []wire.Conversation
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", sessionQuery(session), nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto wire.Conversation, _ int) domain.Conversation { return dto.ToDomain() }), nil
}

func (c *Client) CreateConversation(ctx context.Context, cmd domain.CreateConversationCommand) (domain.Conversation, error) {
	var dto wire.Conversation
	body := wire.FromCreateConversationCommand(cmd)
	if err := c.do(ctx, "create conversation", http.MethodPost, "/conversations", nil, body, &dto); err != nil {
		return domain.Conversation{}, err
	}
	return dto.ToDomain(), nil
}

func (c *Client) GetMessages(ctx context.Context, conversationID domain.ConversationID, session domain.Session) ([]domain.Message, error) {
	var dtos []wire.Message
	path := "/conversations/" + url.PathEscape(string(conversationID)) + "/messages"
	if err := c.do(ctx, "get messages", http.MethodGet, path, sessionQuery(session), nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto wire.Message, _ int) domain.Message {
		m := dto.ToDomain()
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		return m
	}), nil
}

func (c *Client) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	var dto wire.Message
	if err := c.do(ctx, "send message", http.MethodPost, "/messages", nil, wire.FromSendMessageCommand(cmd), &dto); err != nil {
		return domain.Message{}, err
	}
	return dto.ToDomain(), nil
}

func (c *Client) OnlineUsers(ctx context.Context) ([]domain.ParticipantID, error) {
	var ids []string
	if err := c.do(ctx, "online users", http.MethodGet, "/users/online", nil, nil, &ids); err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id string, _ int) domain.ParticipantID { return domain.ParticipantID(id) }), nil
}

func (c *Client) ListNotifications(ctx context.Context, session domain.Session) (domain.NotificationPage, error) {
	var dto wire.NotificationPage
	if err := c.do(ctx, "list notifications", http.MethodGet, "/notifications", sessionQuery(session), nil, &dto); err != nil {
		return domain.NotificationPage{}, err
	}
	return dto.ToDomain(), nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id domain.NotificationID) error {
	path := "/notifications/" + url.PathEscape(string(id)) + "/read"
	return c.do(ctx, "mark notification read", http.MethodPatch, path, nil, nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, session domain.Session) error {
	return c.do(ctx, "mark all notifications read", http.MethodPut, "/notifications/read-all", sessionQuery(session), nil, nil)
}

// do sends one request. Every failure is returned as a NetworkError,
// out is left untouched when the response has no body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.NewNetworkError(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewNetworkError(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("Backend rejected request", "op", op, "status", resp.StatusCode)
		return errors.NewNetworkError(op, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(msg))))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.NewNetworkError(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func sessionQuery(session domain.Session) url.Values {
	return url.Values{
		"userId": {string(session.UserID)},
		"role":   {string(session.Role)},
	}
}
