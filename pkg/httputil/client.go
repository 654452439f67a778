package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client HTTP 客户端包装器：默认请求头、超时与 5xx 重试
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	retries    int
	backoff    time.Duration
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRetries 设置重试次数与初始退避
func WithRetries(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

// WithHTTPClient 使用外部 *http.Client（保留其 Transport）
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc == nil {
			return
		}
		cp := *hc
		if cp.Timeout == 0 {
			cp.Timeout = c.timeout
		}
		c.httpClient = &cp
	}
}

// NewClient 创建HTTP客户端
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		timeout:    10 * time.Second,
		headers:    make(map[string]string),
		backoff:    100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(client)
	}

	if _, ok := client.headers["User-Agent"]; !ok {
		client.headers["User-Agent"] = "incidentdesk/1.0"
	}

	return client
}

// StatusError 非预期的响应状态码
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP请求返回错误状态: %d", e.StatusCode)
}

// Do 执行请求；网络错误与 5xx 按退避重试，带请求体且无法重放时不重试
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	retries := c.retries
	if req.Body != nil && req.GetBody == nil {
		retries = 0
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if attempt >= retries {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		}
	}
}

// Get 发送GET请求
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建GET请求失败: %w", err)
	}
	return c.Do(req)
}

// GetJSON 发送GET请求并解析JSON响应；非 200 返回 *StatusError
func (c *Client) GetJSON(ctx context.Context, url string, result any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("GET请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("解析JSON响应失败: %w", err)
	}
	return nil
}
