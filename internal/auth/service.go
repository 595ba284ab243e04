package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/settings"
)

var (
	// ErrInvalidCredentials is the single error all failed login paths return
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is returned when the account is in a lockout window
	ErrAccountLocked = errors.New("account is temporarily locked")
	// ErrAccountDisabled is returned when the account is deactivated
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrNotVerified is returned when the email has not been verified
	ErrNotVerified = errors.New("email address is not verified")
	// ErrInvalidEmail is returned for malformed registration emails
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidUsername is returned for malformed usernames
	ErrInvalidUsername = errors.New("invalid username")
)

// loginFloor is the minimum wall time of every login attempt, successful or
// not, so response timing does not reveal which check failed.
const loginFloor = 100 * time.Millisecond

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)
)

// Mailer delivers account emails. The default implementation only logs; a
// real SMTP mailer can be dropped in without touching the service.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes the mail it would send to the log
type LogMailer struct{}

// SendVerification logs the verification token instead of sending mail
func (LogMailer) SendVerification(_ context.Context, email, token string) error {
	log.Info().Str("email", email).Str("token", token).Msg("Verification email (log-only mailer)")
	return nil
}

// TokenPair is the result of a successful login or refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service implements registration, login with lockout, token refresh with
// rotation, and logout via the blacklist.
type Service struct {
	users     *UserRepository
	blacklist *BlacklistRepository
	hasher    *PasswordHasher
	jwt       *JWTManager
	mailer    Mailer
	cfg       config.AuthConfig
	settings  *settings.Cache
}

// NewService creates the auth service
func NewService(db *database.Connection, cfg config.AuthConfig, mailer Mailer) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{
		users:     NewUserRepository(db),
		blacklist: NewBlacklistRepository(db),
		hasher:    NewPasswordHasher(cfg.PasswordPepper, cfg.PasswordMinLen),
		jwt:       NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		mailer:    mailer,
		cfg:       cfg,
	}
}

// SetSettings attaches the runtime settings cache so lockout tunables can
// change without a restart.
func (s *Service) SetSettings(cache *settings.Cache) {
	s.settings = cache
}

func (s *Service) maxLoginAttempts() int {
	if s.settings != nil {
		return s.settings.Int("auth", "max_login_attempts", s.cfg.MaxLoginAttempts)
	}
	return s.cfg.MaxLoginAttempts
}

func (s *Service) lockoutDuration() time.Duration {
	if s.settings != nil {
		minutes := s.settings.Int("auth", "lockout_duration_minutes", int(s.cfg.LockoutDuration.Minutes()))
		return time.Duration(minutes) * time.Minute
	}
	return s.cfg.LockoutDuration
}

// Users exposes the user repository for admin handlers
func (s *Service) Users() *UserRepository { return s.users }

// Blacklist exposes the blacklist repository for the middleware and sweeper
func (s *Service) Blacklist() *BlacklistRepository { return s.blacklist }

// JWT exposes the token manager for the middleware
func (s *Service) JWT() *JWTManager { return s.jwt }

// Register creates an account with the default role and mails a
// verification token.
func (s *Service) Register(ctx context.Context, email, username, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if !emailRegex.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if !usernameRegex.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if err := s.hasher.ValidatePolicy(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.Create(ctx, email, username, hash, "user")
	if err != nil {
		return nil, err
	}

	if token, _, err := s.jwt.GenerateVerificationToken(user.ID, user.Email); err == nil {
		if err := s.mailer.SendVerification(ctx, user.Email, token); err != nil {
			log.Warn().Err(err).Str("email", user.Email).Msg("Verification mail failed")
		}
	}

	log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	return user, nil
}

// Login verifies credentials and issues a token pair. Every attempt takes at
// least loginFloor; failures count toward the lockout threshold.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	start := time.Now()
	defer func() {
		if elapsed := time.Since(start); elapsed < loginFloor {
			time.Sleep(loginFloor - elapsed)
		}
	}()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Hash anyway so the miss costs the same as a wrong password.
			_, _ = s.hasher.Hash(password)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if user.Locked(time.Now()) {
		return nil, nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}
	if !user.IsVerified {
		return nil, nil, ErrNotVerified
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		if err := s.users.RecordLoginFailure(ctx, user.ID, s.maxLoginAttempts(), s.lockoutDuration()); err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to record login failure")
		}
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Int64("user_id", user.ID).Msg("User logged in")
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token's jti is blacklisted
// and a fresh pair is issued, so each refresh token works exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.Validate(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenBlacklisted
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := s.blacklist.Add(ctx, claims.ID, userID, TokenTypeRefresh, "refresh", claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	return s.issuePair(user)
}

// Logout revokes both tokens of a session. A missing or invalid refresh
// token is not an error; the access token is always blacklisted.
func (s *Service) Logout(ctx context.Context, accessClaims *TokenClaims, refreshToken string) error {
	userID, err := accessClaims.UserID()
	if err != nil {
		return err
	}
	if err := s.blacklist.Add(ctx, accessClaims.ID, userID, TokenTypeAccess, "logout", accessClaims.ExpiresAt.Time); err != nil {
		return err
	}

	if refreshToken != "" {
		if claims, err := s.jwt.Validate(refreshToken, TokenTypeRefresh); err == nil {
			if err := s.blacklist.Add(ctx, claims.ID, userID, TokenTypeRefresh, "logout", claims.ExpiresAt.Time); err != nil {
				return err
			}
		}
	}

	log.Info().Int64("user_id", userID).Msg("User logged out")
	return nil
}

// Me returns the account behind validated claims
func (s *Service) Me(ctx context.Context, claims *TokenClaims) (*User, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// VerifyEmail consumes a verification token and marks the account verified.
// The token jti is blacklisted so it cannot be replayed.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.jwt.Validate(token, TokenTypeVerify)
	if err != nil {
		return err
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenBlacklisted
	}

	userID, err := claims.UserID()
	if err != nil {
		return err
	}
	if err := s.users.SetVerified(ctx, userID); err != nil {
		return err
	}
	return s.blacklist.Add(ctx, claims.ID, userID, TokenTypeVerify, "consumed", claims.ExpiresAt.Time)
}

// ValidateAccess parses an access token and rejects blacklisted jtis. This is
// the check the request middleware runs.
func (s *Service) ValidateAccess(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwt.Validate(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenBlacklisted
	}
	return claims, nil
}

// EnsureAdmin creates the bootstrap admin account on first start when the
// config names one and no account with that email exists.
func (s *Service) EnsureAdmin(ctx context.Context, admin config.AdminConfig) error {
	if admin.Email == "" || admin.Password == "" {
		return nil
	}
	if _, err := s.users.GetByEmail(ctx, admin.Email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	username := admin.Username
	if username == "" {
		username = "admin"
	}
	hash, err := s.hasher.Hash(admin.Password)
	if err != nil {
		return err
	}
	user, err := s.users.Create(ctx, admin.Email, username, hash, "admin")
	if err != nil {
		return err
	}
	if err := s.users.SetVerified(ctx, user.ID); err != nil {
		return err
	}
	log.Info().Str("email", user.Email).Msg("Bootstrap admin account created")
	return nil
}

func (s *Service) issuePair(user *User) (*TokenPair, error) {
	access, _, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.jwt.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.jwt.AccessTTL().Seconds()),
	}, nil
}
