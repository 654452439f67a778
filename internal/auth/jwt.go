package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentdesk/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenRevoked 令牌已注销
var ErrTokenRevoked = errors.New("令牌已失效")

// TokenClaims 访问令牌声明，Subject 为用户名
type TokenClaims struct {
	EmployeeID string `json:"employee_id"`
	jwt.RegisteredClaims
}

// JWTService JWT 令牌服务
type JWTService struct {
	secretKey []byte
	method    jwt.SigningMethod
	issuer    string
	expiry    time.Duration
	blacklist Blacklist
	now       func() time.Time
}

// JWTOption 配置项
type JWTOption func(*JWTService)

// WithBlacklist 注入令牌黑名单
func WithBlacklist(b Blacklist) JWTOption {
	return func(s *JWTService) {
		if b != nil {
			s.blacklist = b
		}
	}
}

// WithTokenClock 替换时钟（测试用）
func WithTokenClock(now func() time.Time) JWTOption {
	return func(s *JWTService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewJWTService 创建 JWT 服务，签名算法支持 HS256/HS384/HS512
func NewJWTService(secretKey string, cfg config.AuthConfig, opts ...JWTOption) (*JWTService, error) {
	if secretKey == "" {
		return nil, errors.New("JWT 密钥不能为空")
	}
	method, err := signingMethod(cfg.JWTAlgorithm)
	if err != nil {
		return nil, err
	}
	expiry := time.Duration(cfg.AccessTokenMinutes) * time.Minute
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	s := &JWTService{
		secretKey: []byte(secretKey),
		method:    method,
		issuer:    cfg.Issuer,
		expiry:    expiry,
		blacklist: noopBlacklist{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("不支持的签名算法: %s", alg)
	}
}

// ExpiresIn 访问令牌有效期（秒）
func (s *JWTService) ExpiresIn() int64 {
	return int64(s.expiry.Seconds())
}

// GenerateAccessToken 签发访问令牌
func (s *JWTService) GenerateAccessToken(username, employeeID string) (string, error) {
	now := s.now()
	claims := &TokenClaims{
		EmployeeID: employeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("签名令牌失败: %w", err)
	}
	return token, nil
}

// ValidateToken 校验签名、有效期与黑名单
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("无效的令牌")
	}
	if s.blacklist.IsRevoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// InvalidateToken 将令牌加入黑名单直至其自然过期
func (s *JWTService) InvalidateToken(ctx context.Context, tokenString string) error {
	claims, err := s.ValidateToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("加入黑名单失败: %w", err)
	}
	return nil
}

// ExtractTokenFromBearer 从 Bearer 头中提取令牌
func ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "Bearer "
	if len(bearerToken) > len(prefix) && strings.EqualFold(bearerToken[:len(prefix)], prefix) {
		return strings.TrimSpace(bearerToken[len(prefix):])
	}
	return ""
}
