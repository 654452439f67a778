package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/org"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const stateTTL = 10 * time.Minute

// 认证错误
var (
	ErrInvalidCredentials = common.NewBusinessError(common.CodeUnauthorized, "Invalid credentials")
	ErrUseGoogleLogin     = common.NewBusinessError(common.CodeUnauthorized, "Use Google login")
	ErrUsernameExists     = common.ErrInvalid("Username already exists")
	ErrEmployeeIDExists   = common.ErrInvalid("Employee ID already exists")
	ErrInvalidState       = common.ErrInvalid("Invalid or expired OAuth state")
)

// LoginResult 登录/注册结果
type LoginResult struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *org.Profile `json:"user"`
}

// RegisterInput 本地注册参数
type RegisterInput struct {
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Firstname    string `json:"firstname" binding:"required"`
	Lastname     string `json:"lastname" binding:"required"`
	Email        string `json:"email"`
	EmployeeID   string `json:"employee_id"`
	DepartmentID *uint  `json:"department_id"`
	SiteID       *uint  `json:"site_id"`
	PositionID   *uint  `json:"position_id"`
}

// Service 认证服务：本地账号、Google 登录、令牌注销
type Service struct {
	dir    *org.Directory
	tokens *JWTService
	google *GoogleProvider
	states StateStore
	logger *zap.Logger
	now    func() time.Time
}

// ServiceOption 配置项
type ServiceOption func(*Service)

// WithGoogle 启用 Google 登录
func WithGoogle(p *GoogleProvider, states StateStore) ServiceOption {
	return func(s *Service) {
		s.google = p
		if states != nil {
			s.states = states
		}
	}
}

// WithLogger 注入日志
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建认证服务
func NewService(dir *org.Directory, tokens *JWTService, opts ...ServiceOption) *Service {
	s := &Service{
		dir:    dir,
		tokens: tokens,
		states: NewMemoryStateStore(stateTTL),
		logger: logger.L(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login 用户名密码登录
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.dir.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, org.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == GoogleAccountMarker {
		return nil, ErrUseGoogleLogin
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.logger.Info("登录失败，密码错误", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	user.LastLogin = &now
	if err := s.dir.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("更新最近登录时间失败", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return s.issue(ctx, user, "Login success")
}

// Register 本地注册；未提供员工编号时沿用用户名
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	if in.Username == "" || in.Password == "" {
		return nil, common.ErrInvalid("Username and password are required")
	}
	if in.EmployeeID == "" {
		in.EmployeeID = in.Username
	}

	if _, err := s.dir.UserByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, org.ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.dir.UserByEmployeeID(ctx, in.EmployeeID); err == nil {
		return nil, ErrEmployeeIDExists
	} else if !errors.Is(err, org.ErrUserNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &org.User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        strings.TrimSpace(in.Email),
		Firstname:    in.Firstname,
		Lastname:     in.Lastname,
		EmployeeID:   in.EmployeeID,
		DepartmentID: in.DepartmentID,
		SiteID:       in.SiteID,
		PositionID:   in.PositionID,
	}
	if err := s.dir.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("注册员工账号", zap.String("username", user.Username), zap.String("employee_id", user.EmployeeID))
	return s.issue(ctx, user, "User created successfully")
}

// LoginWithGoogle 校验 id_token 后登录，首次登录自动建号
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.loginGoogleIdentity(ctx, identity)
}

// GoogleAuthURL 生成授权地址并保存一次性 state
func (s *Service) GoogleAuthURL(ctx context.Context) (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	state := uuid.NewString()
	if err := s.states.Save(ctx, state, stateTTL); err != nil {
		return "", fmt.Errorf("保存 OAuth state 失败: %w", err)
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleCallback 授权码回调
func (s *Service) GoogleCallback(ctx context.Context, state, code string) (*LoginResult, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	if err := s.states.Consume(ctx, state); err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("读取 OAuth state 失败: %w", err)
	}
	identity, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.loginGoogleIdentity(ctx, identity)
}

func (s *Service) loginGoogleIdentity(ctx context.Context, identity *GoogleIdentity) (*LoginResult, error) {
	username := localPart(identity.Email)
	now := s.now()

	user, err := s.dir.UserByAnyIdentity(ctx, username, username, identity.Email)
	switch {
	case errors.Is(err, org.ErrUserNotFound):
		user = &org.User{
			Username:     username,
			PasswordHash: GoogleAccountMarker,
			Email:        identity.Email,
			Firstname:    identity.GivenName,
			Lastname:     identity.FamilyName,
			EmployeeID:   username,
			ImageURL:     identity.Picture,
			LastLogin:    &now,
		}
		if err := s.dir.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("Google 登录自动创建账号", zap.String("username", username))
	case err != nil:
		return nil, err
	default:
		user.LastLogin = &now
		if identity.Picture != "" {
			user.ImageURL = identity.Picture
		}
		if user.Email == "" {
			user.Email = identity.Email
		}
		// 早期以邮箱作为用户名的账号改用邮箱前缀
		if user.Email != "" && user.Username == user.Email {
			user.Username = username
			user.EmployeeID = username
		}
		if err := s.dir.SaveUser(ctx, user); err != nil {
			return nil, err
		}
	}
	return s.issue(ctx, user, "Login with Google success")
}

// Me 当前登录员工信息
func (s *Service) Me(ctx context.Context, username string) (*org.Profile, error) {
	user, err := s.dir.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.dir.Profile(ctx, user)
}

// Logout 注销令牌
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.InvalidateToken(ctx, token); err != nil {
		return common.NewBusinessError(common.CodeUnauthorized, "Invalid token")
	}
	return nil
}

func (s *Service) issue(ctx context.Context, user *org.User, message string) (*LoginResult, error) {
	token, err := s.tokens.GenerateAccessToken(user.Username, user.EmployeeID)
	if err != nil {
		return nil, err
	}
	profile, err := s.dir.Profile(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Message:     message,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.tokens.ExpiresIn(),
		User:        profile,
	}, nil
}
