package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/email"
	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
	"github.com/carebook/booking-api/pkg/auth"
	apperrors "github.com/carebook/booking-api/pkg/errors"
	"github.com/carebook/booking-api/pkg/logger"
)

// Service is the one-time-code login edge. Codes live only in the expiring
// key-value store; the service itself keeps no state, so any instance can
// verify a code another instance issued.
type Service struct {
	codes     repository.CodeStore
	patients  repository.PatientRepository
	providers repository.ProviderRepository
	tokens    auth.TokenService
	mailer    email.Service
	logger    *logger.Logger
	codeTTL   time.Duration
	// admins maps known administrator emails to their identity ids; admin
	// accounts are provisioned out of band.
	admins map[string]uuid.UUID
}

func NewService(
	codes repository.CodeStore,
	patients repository.PatientRepository,
	providers repository.ProviderRepository,
	tokens auth.TokenService,
	mailer email.Service,
	logger *logger.Logger,
	codeTTL time.Duration,
	admins map[string]uuid.UUID,
) *Service {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &Service{
		codes:     codes,
		patients:  patients,
		providers: providers,
		tokens:    tokens,
		mailer:    mailer,
		logger:    logger,
		codeTTL:   codeTTL,
		admins:    admins,
	}
}

func codeKey(role model.Role, email string) string {
	return fmt.Sprintf("%s:%s", role, email)
}

// RequestOTP issues a fresh code for a known identity and delivers it by
// email. Unknown identities get the same response so the endpoint cannot be
// used to probe accounts.
func (s *Service) RequestOTP(ctx context.Context, req *model.RequestOTPRequest) error {
	if _, err := s.resolveIdentity(ctx, req.Role, req.Email); err != nil {
		s.logger.Debug("otp requested for unknown identity", "role", string(req.Role))
		return nil
	}

	code, err := generateCode()
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.codes.Store(ctx, codeKey(req.Role, req.Email), code, s.codeTTL); err != nil {
		return apperrors.TransientStorage(err)
	}

	if err := s.mailer.SendOTP(ctx, req.Email, code); err != nil {
		s.logger.Error(err, "failed to deliver otp email")
	}
	return nil
}

// VerifyOTP checks and consumes the code, then mints the caller token.
func (s *Service) VerifyOTP(ctx context.Context, req *model.VerifyOTPRequest) (*model.TokenResponse, error) {
	ok, err := s.codes.Verify(ctx, codeKey(req.Role, req.Email), req.Code)
	if err != nil {
		return nil, apperrors.TransientStorage(err)
	}
	if !ok {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid or expired code"))
	}

	identityID, err := s.resolveIdentity(ctx, req.Role, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	token, err := s.tokens.GenerateToken(identityID, req.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{Token: token, Role: req.Role}, nil
}

func (s *Service) resolveIdentity(ctx context.Context, role model.Role, emailAddr string) (uuid.UUID, error) {
	switch role {
	case model.RolePatient:
		patient, err := s.patients.GetByEmail(ctx, emailAddr)
		if err != nil {
			return uuid.Nil, err
		}
		return patient.ID, nil
	case model.RoleProvider:
		provider, err := s.providers.GetByEmail(ctx, emailAddr)
		if err != nil {
			return uuid.Nil, err
		}
		return provider.ID, nil
	case model.RoleAdmin:
		if id, ok := s.admins[emailAddr]; ok {
			return id, nil
		}
		return uuid.Nil, fmt.Errorf("unknown admin")
	}
	return uuid.Nil, fmt.Errorf("unknown role %q", role)
}

// generateCode returns a 6-digit numeric code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
