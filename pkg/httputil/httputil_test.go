package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient 测试默认与自定义配置
func TestNewClient(t *testing.T) {
	client := NewClient()
	if client.timeout != 10*time.Second {
		t.Errorf("默认超时时间应为10秒，实际为 %v", client.timeout)
	}
	if client.headers["User-Agent"] != "incidentdesk/1.0" {
		t.Errorf("默认User-Agent不正确: %s", client.headers["User-Agent"])
	}

	custom := NewClient(
		WithTimeout(3*time.Second),
		WithHeaders(map[string]string{"X-Custom": "value"}),
		WithRetries(2, time.Millisecond),
	)
	if custom.httpClient.Timeout != 3*time.Second {
		t.Errorf("自定义超时时间应为3秒，实际为 %v", custom.httpClient.Timeout)
	}
	if custom.headers["X-Custom"] != "value" {
		t.Errorf("自定义头未设置")
	}
	if custom.retries != 2 {
		t.Errorf("重试次数应为2，实际为 %d", custom.retries)
	}
}

// TestClientGetJSON 测试GetJSON方法
func TestClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "incidentdesk/1.0" {
			t.Errorf("User-Agent 未设置: %s", r.Header.Get("User-Agent"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"aud": "client-1"})
	}))
	defer server.Close()

	client := NewClient(WithHTTPClient(server.Client()))
	var out struct {
		Aud string `json:"aud"`
	}
	if err := client.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON 失败: %v", err)
	}
	if out.Aud != "client-1" {
		t.Errorf("解析结果不正确: %+v", out)
	}
}

// TestClientRetry 5xx 重试，4xx 不重试
func TestClientRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch {
		case r.URL.Path == "/bad":
			w.WriteHeader(http.StatusBadRequest)
		case n < 3:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	client := NewClient(WithRetries(3, time.Millisecond))
	var out map[string]any
	if err := client.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("重试后应成功: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("应请求3次，实际 %d 次", got)
	}

	atomic.StoreInt32(&calls, 0)
	err := client.GetJSON(context.Background(), server.URL+"/bad", &out)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("期望 400 StatusError，实际 %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("4xx 不应重试，实际请求 %d 次", got)
	}
}

// TestClientRetryCancelled 退避期间取消请求
func TestClientRetryCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(WithRetries(5, time.Second))
	if _, err := client.Get(ctx, server.URL); err == nil {
		t.Fatal("已取消的请求应返回错误")
	}
}
