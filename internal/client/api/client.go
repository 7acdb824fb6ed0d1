package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/iudanet/gophsync/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI is the server transport used by collection controllers and the sync coordinator
type ClientAPI interface {
	// FetchUnique получает одну запись по ключу, ErrNotFound если записи нет
	FetchUnique(ctx context.Context, collection, key string) ([]byte, error)
	// FetchQuery получает записи по индексу или полю
	FetchQuery(ctx context.Context, collection string, req api.QueryRequest) (*api.QueryResponse, error)
	// SubmitMutation отправляет upsert, patch или delete
	SubmitMutation(ctx context.Context, collection string, m api.Mutation) (*api.MutationResponse, error)
	// FetchAll выгружает коллекцию целиком
	FetchAll(ctx context.Context, collection string) (*api.FetchAllResponse, error)
	// BatchSyncCheck классифицирует все коллекции одним запросом
	BatchSyncCheck(ctx context.Context, req api.SyncCheckRequest) (*api.SyncCheckResponse, error)
}

// ErrNotFound is returned when the server answers 404
var ErrNotFound = errors.New("not found on server")

// StatusError is a non-2xx server answer
type StatusError struct {
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// Unwrap maps 404 to ErrNotFound
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	mu          sync.RWMutex
}

var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetAccessToken sets the bearer token sent with every request.
// Obtaining the token is up to the caller.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// FetchUnique получает одну запись коллекции
func (c *Client) FetchUnique(ctx context.Context, collection, key string) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/collections/%s/records/%s", url.PathEscape(collection), url.PathEscape(key))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s failed: %w", collection, key, err)
	}
	return resp, nil
}

// FetchQuery выполняет выборку на сервере
func (c *Client) FetchQuery(ctx context.Context, collection string, req api.QueryRequest) (*api.QueryResponse, error) {
	var resp api.QueryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(collection))
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("query %s failed: %w", collection, err)
	}
	return &resp, nil
}

// SubmitMutation отправляет мутацию
func (c *Client) SubmitMutation(ctx context.Context, collection string, m api.Mutation) (*api.MutationResponse, error) {
	var resp api.MutationResponse
	path := fmt.Sprintf("/api/v1/collections/%s/mutations", url.PathEscape(collection))
	if err := c.doRequest(ctx, http.MethodPost, path, m, &resp); err != nil {
		return nil, fmt.Errorf("%s mutation %s/%s failed: %w", m.Type, collection, m.Key, err)
	}
	return &resp, nil
}

// FetchAll выгружает все записи коллекции
func (c *Client) FetchAll(ctx context.Context, collection string) (*api.FetchAllResponse, error) {
	var resp api.FetchAllResponse
	path := fmt.Sprintf("/api/v1/collections/%s/records", url.PathEscape(collection))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch all %s failed: %w", collection, err)
	}
	return &resp, nil
}

// BatchSyncCheck отправляет дескрипторы всех коллекций одним запросом
func (c *Client) BatchSyncCheck(ctx context.Context, req api.SyncCheckRequest) (*api.SyncCheckResponse, error) {
	var resp api.SyncCheckResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/check", req, &resp); err != nil {
		return nil, fmt.Errorf("sync check request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос и декодирует ответ в result
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// do выполняет HTTP запрос и возвращает тело успешного ответа
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
			msg := errResp.Message
			if msg == "" {
				msg = errResp.Error
			}
			return nil, &StatusError{Code: resp.StatusCode, Message: msg}
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}
