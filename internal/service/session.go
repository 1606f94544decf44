package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riteshshukladev/wrapper/internal/auth"
	"github.com/riteshshukladev/wrapper/internal/domain"
	"github.com/riteshshukladev/wrapper/internal/password"
	"github.com/riteshshukladev/wrapper/internal/repository"
	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
	"github.com/riteshshukladev/wrapper/pkg/tracing"
)

const tracerName = "auth/service"

// EventPublisher receives session lifecycle events. Publishing is best
// effort: a failure is logged and never fails the operation.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishSessionStarted(ctx context.Context, userID string) error
	PublishSessionRefreshed(ctx context.Context, userID string) error
	PublishSessionEnded(ctx context.Context, userID string) error
}

// SessionService issues, rotates and revokes token pairs.
//
// A refresh token is usable only while it verifies and its digest is in the
// owner's token set. Refresh swaps the presented token for a new one with a
// conditional Replace, so a refresh token can be redeemed once.
type SessionService struct {
	users   repository.UserRepository
	tokens  repository.TokenStore
	issuer  *auth.Issuer
	hasher  password.Hasher
	decoy   *password.Decoy
	events  EventPublisher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionService creates a new session service. metrics may be nil.
func NewSessionService(
	users repository.UserRepository,
	tokens repository.TokenStore,
	issuer *auth.Issuer,
	hasher password.Hasher,
	events EventPublisher,
	metrics *Metrics,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		users:   users,
		tokens:  tokens,
		issuer:  issuer,
		hasher:  hasher,
		decoy:   password.NewDecoy(hasher),
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// SignupInput holds the parameters for registering a new user.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Signup creates the user and opens their first session.
func (s *SessionService) Signup(ctx context.Context, in SignupInput) (pair *auth.Pair, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SessionService.Signup")
	defer func() { s.finish(span, opSignup, err) }()

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, apperrors.InvalidInput("name, email and password are required")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, duplicateIdentity()
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal(fmt.Errorf("lookup user: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at most %d bytes", password.MaxBcryptLength))
		}
		return nil, apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, duplicateIdentity()
		}
		return nil, apperrors.Internal(fmt.Errorf("create user: %w", err))
	}

	pair, err = s.open(ctx, user)
	if err != nil {
		// roll back the insert so the email stays free
		if derr := s.users.Delete(context.WithoutCancel(ctx), user.ID); derr != nil {
			s.logger.ErrorContext(ctx, "failed to remove user after session setup failed",
				slog.String("user_id", user.ID),
				slog.String("error", derr.Error()),
			)
		}
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("user_id", user.ID))
	return pair, nil
}

// Login checks the credentials and opens an additional session. Sessions
// already open for the user stay valid.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (pair *auth.Pair, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SessionService.Login")
	defer func() { s.finish(span, opLogin, err) }()

	in.Email = normalizeEmail(in.Email)

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Internal(fmt.Errorf("lookup user: %w", err))
		}
		s.decoy.Check(in.Password)
		return nil, apperrors.InvalidCredentials()
	}

	ok, err := s.hasher.Check(in.Password, user.PasswordHash)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("check password: %w", err))
	}
	if !ok {
		return nil, apperrors.InvalidCredentials()
	}

	pair, err = s.open(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return pair, nil
}

// Refresh redeems a refresh token for a new pair. The presented token is
// rotated out of the store; a second redemption fails.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (pair *auth.Pair, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SessionService.Refresh")
	defer func() { s.finish(span, opRefresh, err) }()

	if refreshToken == "" {
		return nil, apperrors.MissingToken()
	}

	userID, err := s.redeemable(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.reject(ctx, opRefresh, userID, "user no longer exists")
			return nil, apperrors.InvalidRefreshToken()
		}
		return nil, apperrors.Internal(fmt.Errorf("get user for refresh: %w", err))
	}

	next, err := s.issuer.IssuePair(auth.Subject{ID: user.ID, Name: user.Name})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue tokens: %w", err))
	}

	if err := s.tokens.Replace(ctx, user.ID, refreshToken, next.RefreshToken); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.reject(ctx, opRefresh, user.ID, "token rotated concurrently")
			return nil, apperrors.InvalidRefreshToken()
		}
		return nil, apperrors.Internal(fmt.Errorf("rotate refresh token: %w", err))
	}

	if err := s.events.PublishSessionRefreshed(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.refreshed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return &next, nil
}

// Logout revokes one refresh token. Other sessions of the user are kept.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SessionService.Logout")
	defer func() { s.finish(span, opLogout, err) }()

	if refreshToken == "" {
		return apperrors.MissingToken()
	}

	claims, err := s.issuer.Refresh.Verify(refreshToken)
	if err != nil {
		s.reject(ctx, opLogout, "", err.Error())
		return apperrors.InvalidRefreshToken()
	}

	if err := s.tokens.Remove(ctx, claims.UserID, refreshToken); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.reject(ctx, opLogout, claims.UserID, "token not in store")
			return apperrors.InvalidRefreshToken()
		}
		return apperrors.Internal(fmt.Errorf("remove refresh token: %w", err))
	}

	if err := s.events.PublishSessionEnded(ctx, claims.UserID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.ended event",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// GetUserData returns the profile of an authenticated user.
func (s *SessionService) GetUserData(ctx context.Context, userID string) (profile *domain.Profile, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "SessionService.GetUserData")
	defer func() { s.finish(span, opUser, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UserNotFound(userID)
		}
		return nil, apperrors.Internal(fmt.Errorf("get user: %w", err))
	}

	p := user.Profile()
	return &p, nil
}

// VerifyAccessToken checks an access token. Expiry is reported as
// apperrors.Expired, anything else as Unauthorized.
func (s *SessionService) VerifyAccessToken(token string) (*auth.Claims, error) {
	claims, err := s.issuer.Access.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) {
			return nil, apperrors.Expired()
		}
		return nil, apperrors.Unauthorized("invalid token")
	}
	return claims, nil
}

// open issues a pair for user and stores its refresh token.
func (s *SessionService) open(ctx context.Context, user *domain.User) (*auth.Pair, error) {
	pair, err := s.issuer.IssuePair(auth.Subject{ID: user.ID, Name: user.Name})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue tokens: %w", err))
	}
	if err := s.tokens.Add(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("store refresh token: %w", err))
	}

	if err := s.events.PublishSessionStarted(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.started event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return &pair, nil
}

// redeemable returns the owner of refreshToken if it verifies and is still
// stored. Both failures look the same to the caller.
func (s *SessionService) redeemable(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.Refresh.Verify(refreshToken)
	if err != nil {
		s.reject(ctx, opRefresh, "", err.Error())
		return "", apperrors.InvalidRefreshToken()
	}

	ok, err := s.tokens.Contains(ctx, claims.UserID, refreshToken)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("check refresh token: %w", err))
	}
	if !ok {
		s.reject(ctx, opRefresh, claims.UserID, "token not in store")
		return "", apperrors.InvalidRefreshToken()
	}
	return claims.UserID, nil
}

func (s *SessionService) reject(ctx context.Context, op, userID, reason string) {
	s.logger.WarnContext(ctx, "refresh token rejected",
		slog.String("operation", op),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

func (s *SessionService) finish(span trace.Span, op string, err error) {
	span.SetAttributes(attribute.String("auth.outcome", outcome(err)))
	if err != nil && apperrors.KindOf(err) == apperrors.KindInternal {
		tracing.End(span, err)
	} else {
		span.End()
	}
	s.metrics.observe(op, err)
}

func duplicateIdentity() *apperrors.AppError {
	return apperrors.DuplicateIdentity("user with this email already exists")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
