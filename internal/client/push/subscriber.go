// Package push receives server change notifications over a WebSocket.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iudanet/gophsync/internal/models"
)

// DefaultBuffer размер буфера канала уведомлений.
const DefaultBuffer = 16

// Subscriber dials the push endpoint and streams notifications.
type Subscriber struct {
	logger      *slog.Logger
	httpClient  *http.Client
	baseURL     string
	accessToken string
	buffer      int
	mu          sync.RWMutex
}

// NewSubscriber creates a subscriber for the server at baseURL.
// http(s) scheme is rewritten to ws(s).
func NewSubscriber(baseURL string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		baseURL: wsURL(strings.TrimRight(baseURL, "/")),
		logger:  logger,
		buffer:  DefaultBuffer,
	}
}

// SetAccessToken sets the bearer token sent on dial.
func (s *Subscriber) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

// SetHTTPClient overrides the client used for the handshake.
func (s *Subscriber) SetHTTPClient(c *http.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpClient = c
}

// Subscribe opens a connection to path. The returned channel is closed
// when the connection drops or ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, path string) (<-chan models.Notification, error) {
	header := http.Header{}
	s.mu.RLock()
	if s.accessToken != "" {
		header.Set("Authorization", "Bearer "+s.accessToken)
	}
	httpClient := s.httpClient
	s.mu.RUnlock()

	conn, _, err := websocket.Dial(ctx, s.baseURL+path, &websocket.DialOptions{
		HTTPClient: httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial push endpoint: %w", err)
	}

	s.logger.Debug("Push subscription opened", "path", path)

	out := make(chan models.Notification, s.buffer)
	go s.readLoop(ctx, conn, out)
	return out, nil
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.Notification) {
	defer close(out)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		var n models.Notification
		if err := wsjson.Read(ctx, conn, &n); err != nil {
			s.logClosed(ctx, err)
			return
		}
		if n.CollectionID == "" {
			s.logger.Warn("Push notification without collection ignored")
			continue
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscriber) logClosed(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.logger.Debug("Push subscription canceled")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		s.logger.Info("Push connection closed by server", "status", websocket.CloseStatus(err))
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Push read timed out", "error", err)
	default:
		s.logger.Warn("Push connection lost", "error", err)
	}
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
