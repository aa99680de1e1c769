// Package verification issues and checks one-time codes sent to a phone.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"

	"github.com/rs/zerolog"
)

// CodeStore keeps the expected code per phone until it expires or is consumed.
type CodeStore interface {
	Save(ctx context.Context, phone, code string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, bool, error)
	Delete(ctx context.Context, phone string) error
}

// Sender delivers the code to the user.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

type Service struct {
	store     CodeStore
	sender    Sender
	fixedCode string
	length    int
	ttl       time.Duration
	logger    *zerolog.Logger
}

var _ domain.VerificationService = (*Service)(nil)

func NewService(cfg config.VerificationConfig, store CodeStore, sender Sender, logger *zerolog.Logger) *Service {
	length := cfg.CodeLength
	if length <= 0 {
		length = 4
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:     store,
		sender:    sender,
		fixedCode: cfg.FixedCode,
		length:    length,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *Service) SendOTP(ctx context.Context, phone string) error {
	phone = NormalizePhone(phone)
	if phone == "" {
		return fmt.Errorf("%w: empty phone", domain.ErrOTPDeliveryFailed)
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := s.store.Save(ctx, phone, code, s.ttl); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, phone, msg); err != nil {
		_ = s.store.Delete(ctx, phone)
		return fmt.Errorf("%w: %v", domain.ErrOTPDeliveryFailed, err)
	}

	s.logger.Info().Str("phone", maskPhone(phone)).Msg("OTP sent")
	return nil
}

// VerifyOTP reports whether code matches the one sent to phone. A mismatch is
// (false, nil). A phone with no pending code, because it expired or was
// consumed, gets domain.ErrOTPExpired so the caller can send a new one.
// The expected code is never returned.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (bool, error) {
	phone = NormalizePhone(phone)
	expected, ok, err := s.store.Get(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("load otp: %w", err)
	}
	if !ok {
		s.logger.Debug().Str("phone", maskPhone(phone)).Msg("No pending OTP")
		return false, domain.ErrOTPExpired
	}

	code = strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) != 1 {
		s.logger.Debug().Str("phone", maskPhone(phone)).Msg("OTP mismatch")
		return false, nil
	}

	if err := s.store.Delete(ctx, phone); err != nil {
		s.logger.Warn().Err(err).Str("phone", maskPhone(phone)).Msg("Failed to consume OTP")
	}
	return true, nil
}

func (s *Service) generate() (string, error) {
	if s.fixedCode != "" {
		return s.fixedCode, nil
	}
	var b strings.Builder
	for i := 0; i < s.length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NormalizePhone strips everything except digits and a leading plus.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
