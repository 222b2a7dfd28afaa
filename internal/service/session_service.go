package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/session")

const (
	bcryptCost  = 12
	tokenIssuer = "brokerflow-bfa"
)

// SessionConfig tunes the session service.
type SessionConfig struct {
	JWTSecret       string
	SessionTTL      time.Duration
	RequirePassword bool
	DefaultOrgID    string
}

// SessionService registers accounts and opens and closes sessions.
type SessionService struct {
	repo   *Repository
	cfg    SessionConfig
	secret []byte
	now    func() time.Time
	logger *zap.Logger
}

// NewSessionService creates the session service.
func NewSessionService(repo *Repository, cfg SessionConfig, logger *zap.Logger) *SessionService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.DefaultOrgID == "" {
		cfg.DefaultOrgID = "brokerage-789"
	}
	return &SessionService{
		repo:   repo,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		now:    time.Now,
		logger: logger,
	}
}

// ============================================================
// Login POST /v1/auth/login
// ============================================================

func (s *SessionService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.SessionResponse, error) {
	ctx, span := authTracer.Start(ctx, "SessionService.Login")
	defer span.End()

	if strings.TrimSpace(req.Email) == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}

	accounts, err := s.repo.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	i := findAccountByEmail(accounts, req.Email)
	if i < 0 {
		s.logger.Info("login: no account found")
		return nil, &domain.ErrUnauthorized{Message: "no account found"}
	}
	acct := accounts[i]

	if err := s.checkPassword(&acct, req.Password); err != nil {
		s.logger.Warn("login: password mismatch", zap.String("account_id", acct.ID))
		return nil, err
	}

	resp, err := s.openSession(ctx, acct.Profile)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("account.id", acct.ID))
	s.logger.Info("login: session opened", zap.String("account_id", acct.ID))
	return resp, nil
}

// checkPassword compares only when a password is supplied, unless the
// service is configured to require one.
func (s *SessionService) checkPassword(acct *domain.Account, password string) error {
	invalid := &domain.ErrUnauthorized{Message: "invalid credentials"}

	if password == "" {
		if s.cfg.RequirePassword {
			return invalid
		}
		return nil
	}
	if acct.PasswordHash == "" {
		if s.cfg.RequirePassword {
			return invalid
		}
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return invalid
	}
	return nil
}

// ============================================================
// Signup POST /v1/auth/signup
// ============================================================

func (s *SessionService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.SessionResponse, error) {
	ctx, span := authTracer.Start(ctx, "SessionService.Signup")
	defer span.End()

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	fullName := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	if fullName == "" {
		return nil, &domain.ErrValidation{Field: "firstName", Message: "name is required"}
	}
	if s.cfg.RequirePassword && req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "password is required"}
	}

	var hash string
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	acct, err := s.register(ctx, domain.Account{
		Profile: domain.Profile{
			ID:       uuid.NewString(),
			OrgID:    s.cfg.DefaultOrgID,
			FullName: fullName,
			Role:     domain.RoleAgent,
		},
		Email:        email,
		PasswordHash: hash,
		IncomeTarget: domain.DefaultIncomeTarget,
		ExpenseCap:   domain.DefaultExpenseCap,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.resetScoped(ctx, acct.ID); err != nil {
		return nil, err
	}

	s.logger.Info("signup: account registered", zap.String("account_id", acct.ID))
	return s.openSession(ctx, acct.Profile)
}

// register appends acct unless its email is taken.
func (s *SessionService) register(ctx context.Context, acct domain.Account) (*domain.Account, error) {
	defer s.repo.lockAccounts()()

	accounts, err := s.repo.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if findAccountByEmail(accounts, acct.Email) >= 0 {
		return nil, &domain.ErrConflict{Message: "account already exists"}
	}
	if err := s.repo.saveAccounts(ctx, append(accounts, acct)); err != nil {
		return nil, err
	}
	return &acct, nil
}

// EnsureAccount registers acct if no account has its email. It reports
// whether it was created.
func (s *SessionService) EnsureAccount(ctx context.Context, acct domain.Account) (bool, error) {
	if _, err := s.register(ctx, acct); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ============================================================
// Logout POST /v1/auth/logout
// ============================================================

// Logout deletes the session pointer. Account data is untouched.
func (s *SessionService) Logout(ctx context.Context, p domain.Principal) error {
	ctx, span := authTracer.Start(ctx, "SessionService.Logout")
	defer span.End()

	if err := s.repo.store.Delete(ctx, domain.SessionKey(p.SessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("logout", zap.String("account_id", p.AccountID))
	return nil
}

// ============================================================
// Authenticate used by middleware
// ============================================================

// SessionClaims are the custom claims in session tokens.
type SessionClaims struct {
	Sub       string `json:"sub"`
	SessionID string `json:"sid"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// Authenticate validates token and checks that its session still exists.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "SessionService.Authenticate")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && token != nil {
			if claims, ok := token.Claims.(*SessionClaims); ok && claims.SessionID != "" {
				s.dropSession(ctx, claims.SessionID)
			}
		}
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != "access" || claims.SessionID == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}

	raw, err := s.repo.store.Get(ctx, domain.SessionKey(claims.SessionID))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if raw == nil {
		return nil, &domain.ErrUnauthorized{Message: "session ended"}
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Profile.ID != claims.Sub {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if exp, err := time.Parse(time.RFC3339, sess.ExpiresAt); err == nil && !s.now().Before(exp) {
		s.dropSession(ctx, sess.ID)
		return nil, &domain.ErrUnauthorized{Message: "session ended"}
	}

	return &domain.Principal{
		AccountID: sess.Profile.ID,
		SessionID: sess.ID,
		Profile:   sess.Profile,
	}, nil
}

// Profile returns the session's profile (GET /v1/auth/session).
func (s *SessionService) Profile(p domain.Principal) domain.Profile {
	return p.Profile
}

// ============================================================
// Internal helpers
// ============================================================

func (s *SessionService) openSession(ctx context.Context, profile domain.Profile) (*domain.SessionResponse, error) {
	now := s.now()
	sess := domain.Session{
		ID:        uuid.NewString(),
		Profile:   profile,
		CreatedAt: now.UTC().Format(time.RFC3339),
		ExpiresAt: now.Add(s.cfg.SessionTTL).UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	key := domain.SessionKey(sess.ID)
	if es, ok := s.repo.store.(port.ExpiringStore); ok {
		err = es.PutWithTTL(ctx, key, raw, s.cfg.SessionTTL)
	} else {
		err = s.repo.store.Put(ctx, key, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	token, err := s.signToken(profile.ID, sess.ID, now)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &domain.SessionResponse{
		AccessToken: token,
		ExpiresIn:   int(s.cfg.SessionTTL.Seconds()),
		Profile:     profile,
	}, nil
}

// dropSession removes an expired session pointer. Stores without expiry
// rely on this to clean up.
func (s *SessionService) dropSession(ctx context.Context, sessionID string) {
	if err := s.repo.store.Delete(ctx, domain.SessionKey(sessionID)); err != nil {
		s.logger.Warn("failed to drop expired session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *SessionService) signToken(accountID, sessionID string, now time.Time) (string, error) {
	claims := SessionClaims{
		Sub:       accountID,
		SessionID: sessionID,
		Type:      "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// WithClock replaces the time source. Tests use it to pin "today".
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}
