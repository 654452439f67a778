package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/config"
	"incidentdesk/internal/org"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testClock = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// fakeTokenInfo 按 id_token 返回预置的 tokeninfo 响应
func fakeTokenInfo(t *testing.T, tokens map[string]map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := tokens[r.URL.Query().Get("id_token")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(org.Models()...))

	require.NoError(t, db.Create(&org.Department{ID: 1, NameEN: "IT"}).Error)
	require.NoError(t, db.Create(&org.PositionLevel{ID: 5, LevelName: "Supervisor"}).Error)
	require.NoError(t, db.Create(&org.Position{ID: 5, NameEN: "IT Supervisor", PositionLevelID: ptr(uint(5))}).Error)

	srv := fakeTokenInfo(t, map[string]map[string]string{
		"good": {"aud": "client-1", "email": "newcomer@example.com", "email_verified": "true",
			"given_name": "New", "family_name": "Comer", "picture": "https://img/1.png"},
		"legacy":   {"aud": "client-1", "email": "legacy@example.com", "email_verified": "true"},
		"other":    {"aud": "client-1", "email": "someone@gmail.com", "email_verified": "true"},
		"noemail":  {"aud": "client-1"},
		"wrongaud": {"aud": "client-2", "email": "x@example.com"},
	})

	authCfg := config.AuthConfig{
		JWTAlgorithm:        "HS256",
		Issuer:              "incidentdesk",
		AccessTokenMinutes:  30,
		GoogleClientID:      "client-1",
		GoogleRedirectURL:   "http://localhost/callback",
		AllowedGoogleDomain: "example.com",
	}
	now := func() time.Time { return testClock }
	tokens, err := NewJWTService("secret", authCfg, WithTokenClock(now), WithBlacklist(NewMemoryBlacklist()))
	require.NoError(t, err)

	google := NewGoogleProvider(authCfg, WithTokenInfoURL(srv.URL), WithHTTPClient(srv.Client()))
	dir := org.NewDirectory(db)
	svc := NewService(dir, tokens,
		WithGoogle(google, NewMemoryStateStore(time.Minute)),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(now),
	)
	return svc, db
}

func ptr[T any](v T) *T { return &v }

func requireCode(t *testing.T, err error, code int, msg string) {
	t.Helper()
	be, ok := common.AsBusinessError(err)
	require.True(t, ok, "expected business error, got %v", err)
	assert.Equal(t, code, be.Code)
	if msg != "" {
		assert.Equal(t, msg, be.Message)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		Username:     "somchai",
		Password:     "s3cret",
		Firstname:    "Somchai",
		Lastname:     "Dee",
		EmployeeID:   "E003",
		DepartmentID: ptr(uint(1)),
		PositionID:   ptr(uint(5)),
	})
	require.NoError(t, err)
	assert.Equal(t, "User created successfully", res.Message)
	assert.NotEmpty(t, res.AccessToken)
	require.NotNil(t, res.User.Department)
	assert.Equal(t, "IT", *res.User.Department)
	assert.Equal(t, "Supervisor", *res.User.PositionLevel)

	var stored org.User
	require.NoError(t, db.Where("username = ?", "somchai").First(&stored).Error)
	assert.NotEqual(t, "s3cret", stored.PasswordHash)

	t.Run("重复用户名", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Username: "somchai", Password: "x", Firstname: "a", Lastname: "b"})
		requireCode(t, err, common.CodeInvalidRequest, "Username already exists")
	})

	t.Run("重复员工编号", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Username: "other", Password: "x", Firstname: "a", Lastname: "b", EmployeeID: "E003"})
		requireCode(t, err, common.CodeInvalidRequest, "Employee ID already exists")
	})

	t.Run("未填员工编号时使用用户名", func(t *testing.T) {
		res, err := svc.Register(ctx, RegisterInput{Username: "malee", Password: "x", Firstname: "Malee", Lastname: "S"})
		require.NoError(t, err)
		assert.Equal(t, "malee", res.User.EmployeeID)
	})

	t.Run("密码登录", func(t *testing.T) {
		res, err := svc.Login(ctx, "somchai", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "Login success", res.Message)
		require.NotNil(t, res.User.LastLogin)
		assert.True(t, res.User.LastLogin.Equal(testClock))

		claims, err := svc.tokens.ValidateToken(ctx, res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "somchai", claims.Subject)
		assert.Equal(t, "E003", claims.EmployeeID)
	})

	t.Run("密码错误与用户不存在返回相同错误", func(t *testing.T) {
		_, err := svc.Login(ctx, "somchai", "wrong")
		requireCode(t, err, common.CodeUnauthorized, "Invalid credentials")
		_, err = svc.Login(ctx, "ghost", "wrong")
		requireCode(t, err, common.CodeUnauthorized, "Invalid credentials")
	})

	t.Run("Me 返回当前员工", func(t *testing.T) {
		p, err := svc.Me(ctx, "somchai")
		require.NoError(t, err)
		assert.Equal(t, "E003", p.EmployeeID)
	})

	t.Run("注销后令牌失效", func(t *testing.T) {
		res, err := svc.Login(ctx, "somchai", "s3cret")
		require.NoError(t, err)
		require.NoError(t, svc.Logout(ctx, res.AccessToken))
		_, err = svc.tokens.ValidateToken(ctx, res.AccessToken)
		require.ErrorIs(t, err, ErrTokenRevoked)

		err = svc.Logout(ctx, "garbage")
		requireCode(t, err, common.CodeUnauthorized, "")
	})
}

func TestLoginWithGoogle(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	t.Run("首次登录自动建号", func(t *testing.T) {
		res, err := svc.LoginWithGoogle(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "Login with Google success", res.Message)
		assert.Equal(t, "newcomer", res.User.Username)
		assert.Equal(t, "newcomer", res.User.EmployeeID)
		require.NotNil(t, res.User.ImageURL)

		var u org.User
		require.NoError(t, db.Where("username = ?", "newcomer").First(&u).Error)
		assert.Equal(t, GoogleAccountMarker, u.PasswordHash)
		assert.Equal(t, "New", u.Firstname)
	})

	t.Run("再次登录不重复建号", func(t *testing.T) {
		_, err := svc.LoginWithGoogle(ctx, "good")
		require.NoError(t, err)
		var count int64
		require.NoError(t, db.Model(&org.User{}).Where("email = ?", "newcomer@example.com").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Google 账号不能用密码登录", func(t *testing.T) {
		_, err := svc.Login(ctx, "newcomer", GoogleAccountMarker)
		requireCode(t, err, common.CodeUnauthorized, "Use Google login")
	})

	t.Run("以邮箱为用户名的旧账号改为邮箱前缀", func(t *testing.T) {
		require.NoError(t, db.Create(&org.User{
			Username: "legacy@example.com", EmployeeID: "legacy@example.com", Email: "legacy@example.com",
		}).Error)
		res, err := svc.LoginWithGoogle(ctx, "legacy")
		require.NoError(t, err)
		assert.Equal(t, "legacy", res.User.Username)
		assert.Equal(t, "legacy", res.User.EmployeeID)
	})

	t.Run("域名不允许", func(t *testing.T) {
		_, err := svc.LoginWithGoogle(ctx, "other")
		requireCode(t, err, common.CodeForbidden, "Google account domain is not allowed")
	})

	t.Run("令牌缺少邮箱", func(t *testing.T) {
		_, err := svc.LoginWithGoogle(ctx, "noemail")
		requireCode(t, err, common.CodeInvalidRequest, "No email in Google token")
	})

	t.Run("受众不匹配或无效令牌", func(t *testing.T) {
		_, err := svc.LoginWithGoogle(ctx, "wrongaud")
		requireCode(t, err, common.CodeUnauthorized, "Invalid Google token")
		_, err = svc.LoginWithGoogle(ctx, "unknown")
		requireCode(t, err, common.CodeUnauthorized, "Invalid Google token")
	})
}

func TestGoogleAuthorizationCodeFlow(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	raw, err := svc.GoogleAuthURL(ctx)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost/callback", u.Query().Get("redirect_uri"))
	require.NotEmpty(t, u.Query().Get("state"))

	t.Run("未知 state 被拒绝", func(t *testing.T) {
		_, err := svc.GoogleCallback(ctx, "forged", "code")
		requireCode(t, err, common.CodeInvalidRequest, "Invalid or expired OAuth state")
	})

	t.Run("未配置 Google", func(t *testing.T) {
		plain := NewService(svc.dir, svc.tokens)
		_, err := plain.GoogleAuthURL(ctx)
		requireCode(t, err, common.CodeInvalidRequest, "Google login is not configured")
		_, err = plain.LoginWithGoogle(ctx, "good")
		requireCode(t, err, common.CodeInvalidRequest, "Google login is not configured")
	})
}
