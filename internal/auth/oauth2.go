package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/config"
	"incidentdesk/pkg/httputil"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Google 登录错误
var (
	ErrInvalidGoogleToken = common.NewBusinessError(common.CodeUnauthorized, "Invalid Google token")
	ErrGoogleNoEmail      = common.ErrInvalid("No email in Google token")
	ErrGoogleDomain       = common.ErrForbidden("Google account domain is not allowed")
	ErrGoogleDisabled     = common.ErrInvalid("Google login is not configured")
)

// GoogleIdentity 经过校验的 Google 身份
type GoogleIdentity struct {
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

// GoogleProvider Google OAuth2 登录，限定单一邮箱域
type GoogleProvider struct {
	oauth         *oauth2.Config
	clientID      string
	allowedDomain string
	tokenInfoURL  string
	httpClient    *http.Client
	api           *httputil.Client
}

// GoogleOption 配置项
type GoogleOption func(*GoogleProvider)

// WithTokenInfoURL 替换 tokeninfo 端点（测试用）
func WithTokenInfoURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.tokenInfoURL = u }
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// NewGoogleProvider 未配置 client id 时返回 nil
func NewGoogleProvider(cfg config.AuthConfig, opts ...GoogleOption) *GoogleProvider {
	if cfg.GoogleClientID == "" {
		return nil
	}
	p := &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		clientID:      cfg.GoogleClientID,
		allowedDomain: strings.ToLower(strings.TrimSpace(cfg.AllowedGoogleDomain)),
		tokenInfoURL:  defaultTokenInfoURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.api = httputil.NewClient(httputil.WithHTTPClient(p.httpClient), httputil.WithRetries(2, 200*time.Millisecond))
	return p
}

// AuthCodeURL 授权地址
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange 授权码换取 id_token 并校验
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrInvalidGoogleToken
	}
	return p.Verify(ctx, idToken)
}

// Verify 通过 tokeninfo 校验 id_token，检查受众与邮箱域
func (p *GoogleProvider) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidGoogleToken
	}
	var info struct {
		Aud           string `json:"aud"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	err := p.api.GetJSON(ctx, p.tokenInfoURL+"?id_token="+url.QueryEscape(idToken), &info)
	var statusErr *httputil.StatusError
	switch {
	case errors.As(err, &statusErr):
		return nil, ErrInvalidGoogleToken
	case err != nil:
		return nil, fmt.Errorf("请求 Google tokeninfo 失败: %w", err)
	}
	if info.Aud != p.clientID {
		return nil, ErrInvalidGoogleToken
	}
	if info.Email == "" {
		return nil, ErrGoogleNoEmail
	}
	if info.EmailVerified == "false" {
		return nil, ErrInvalidGoogleToken
	}
	if p.allowedDomain != "" && emailDomain(info.Email) != p.allowedDomain {
		return nil, ErrGoogleDomain
	}
	return &GoogleIdentity{
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Picture:    info.Picture,
	}, nil
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// localPart 邮箱 @ 之前的部分，用作用户名与员工编号
func localPart(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at]
}

