package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/internal/ids"
	"github.com/arkivist/authcore/password"
)

// Register creates a new credential with the lowest-privilege role.
// The account starts active with an unverified email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Credential, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		s.metrics.Registration("invalid_email")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRegister,
			Email:     in.Email,
			Error:     errString(err),
		})
		return nil, err
	}

	if err := password.CheckStrength(in.Password); err != nil {
		s.metrics.Registration("weak_password")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRegister,
			Email:     email,
			Error:     errString(err),
		})
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	if _, err := s.creds.FindByEmail(ctx, email); err == nil {
		s.metrics.Registration("duplicate")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRegister,
			Email:     email,
			Error:     ErrDuplicateEmail.Error(),
		})
		return nil, ErrDuplicateEmail
	} else if !IsNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := s.now().UTC()
	cred := &Credential{
		ID:            ids.New(),
		Email:         email,
		PasswordHash:  hash,
		Name:          strings.TrimSpace(in.Name),
		Role:          RoleViewer,
		Department:    strings.TrimSpace(in.Department),
		Active:        true,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metrics.Registration("success")
	s.emit(ctx, audit.Event{
		EventType: audit.EventRegister,
		Subject:   cred.ID,
		Email:     email,
		Success:   true,
	})
	return cred, nil
}

// IsNotFound reports whether err is the domain-level not-found signal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	if !strings.Contains(strings.SplitN(email, "@", 2)[1], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
