package service

import (
	"context"
	"log/slog"

	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/fingerprint"
	"github.com/fitsync/platform/internal/guard"
	"github.com/fitsync/platform/internal/repository"
	"github.com/fitsync/platform/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// LoginLockout guards repeated failed credentials per account.
type LoginLockout interface {
	// CheckLocked returns ErrAccountLocked once too many recent attempts failed.
	CheckLocked(ctx context.Context, email string) error

	// RecordAttempt logs one attempt. Best-effort; it never fails the login.
	RecordAttempt(ctx context.Context, email, ip string, success bool)
}

// AuthService handles registration and login. Credential verification happens
// here; everything session-shaped is delegated to the session engine.
type AuthService struct {
	pool         *pgxpool.Pool
	users        repository.AuthUserRepository
	fingerprints *fingerprint.Service
	sessions     *session.Engine
	jwtMgr       *auth.JWTManager
	limiter      *guard.RateLimiter
	lockout      LoginLockout
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	pool *pgxpool.Pool,
	users repository.AuthUserRepository,
	fingerprints *fingerprint.Service,
	sessions *session.Engine,
	jwtMgr *auth.JWTManager,
	limiter *guard.RateLimiter,
	lockout LoginLockout,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		pool:         pool,
		users:        users,
		fingerprints: fingerprints,
		sessions:     sessions,
		jwtMgr:       jwtMgr,
		limiter:      limiter,
		lockout:      lockout,
		logger:       logger,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a new account. It does not open a session; the client
// logs in afterwards so the fraud path sees every session creation.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.AuthUser, error) {
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}
	if input.Role == "" {
		input.Role = auth.RoleClient
	}
	if !validRole(input.Role) {
		return nil, domain.ErrValidation("unknown role: " + input.Role)
	}

	existing, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	user := &domain.AuthUser{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
	}
	if err := s.users.Create(ctx, s.pool, user); err != nil {
		return nil, domain.ErrInternal("create user", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// LoginInput holds the login request fields plus the request metadata the
// fingerprint is derived from.
type LoginInput struct {
	Email    string                  `json:"email"`
	Password string                  `json:"password"`
	Hints    fingerprint.ClientHints `json:"device,omitempty"`

	// Filled by the handler from the request, not the JSON body.
	UserAgent      string `json:"-"`
	AcceptLanguage string `json:"-"`
	SourceAddress  string `json:"-"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token              string                  `json:"token"`
	UserID             uuid.UUID               `json:"user_id"`
	SessionID          uuid.UUID               `json:"session_id"`
	Email              string                  `json:"email"`
	Role               string                  `json:"role"`
	TerminatedSessions int                     `json:"terminated_sessions"`
	FraudWarning       *domain.FraudAssessment `json:"fraud_warning,omitempty"`
}

// Login authenticates the user and opens a session through the policy engine.
// A fraud block surfaces as *domain.FraudBlockedError; policy evictions of
// older sessions are not an error, only reported in TerminatedSessions.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if res := s.limiter.Check(ctx, input.SourceAddress); !res.Allowed {
		return nil, domain.ErrRateLimited(res.Reason)
	}
	if err := s.lockout.CheckLocked(ctx, input.Email); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		s.lockout.RecordAttempt(ctx, input.Email, input.SourceAddress, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.lockout.RecordAttempt(ctx, input.Email, input.SourceAddress, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	s.lockout.RecordAttempt(ctx, input.Email, input.SourceAddress, true)

	fp := s.fingerprints.Generate(input.UserAgent, input.AcceptLanguage, input.Hints)

	created, err := s.sessions.CreateSession(ctx, user.ID, user.Role, fp, input.SourceAddress)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtMgr.GenerateToken(user.ID, created.Session.ID, user.Email, user.Role)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	result := &LoginResult{
		Token:              token,
		UserID:             user.ID,
		SessionID:          created.Session.ID,
		Email:              user.Email,
		Role:               user.Role,
		TerminatedSessions: created.TerminatedCount,
	}
	if created.Assessment.RecommendedAction == domain.ActionWarn {
		warning := created.Assessment
		result.FraudWarning = &warning
	}
	return result, nil
}

// Logout terminates the caller's current session. Logging out of an
// already-terminated session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID, userID uuid.UUID) error {
	return s.sessions.TerminateSession(ctx, sessionID, userID)
}

func validRole(role string) bool {
	for _, r := range auth.AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}
