package auth

import (
	"context"

	"incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	// IdentityContextKey 当前登录身份
	IdentityContextKey ContextKey = "identity"
	// TokenContextKey 原始访问令牌
	TokenContextKey ContextKey = "access_token"
)

// Identity 当前登录身份
type Identity struct {
	Username   string
	EmployeeID string
}

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "Missing bearer token")
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "Invalid authorization header")
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			common.AbortWithError(c, common.CodeUnauthorized, "Invalid or expired token")
			return
		}

		identity := &Identity{Username: claims.Subject, EmployeeID: claims.EmployeeID}
		c.Set(string(IdentityContextKey), identity)
		c.Set(string(TokenContextKey), token)
		c.Request = c.Request.WithContext(SetIdentity(c.Request.Context(), identity))

		c.Next()
	}
}

// GetIdentity 从 Gin Context 获取当前身份
func GetIdentity(c *gin.Context) (*Identity, bool) {
	v, exists := c.Get(string(IdentityContextKey))
	if !exists {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok
}

// GetToken 从 Gin Context 获取原始令牌
func GetToken(c *gin.Context) string {
	return c.GetString(string(TokenContextKey))
}

// SetIdentity 在标准 context.Context 中设置身份
func SetIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext 从标准 context.Context 获取身份
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok
}

// Actor 审计用操作人：优先员工编号，其次用户名，未登录时为 system
func Actor(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	switch {
	case !ok:
		return "system"
	case identity.EmployeeID != "":
		return identity.EmployeeID
	case identity.Username != "":
		return identity.Username
	default:
		return "system"
	}
}
