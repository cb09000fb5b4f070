package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrOTPInvalid = errors.New("invalid or expired code")
)

const (
	otpLength = 6
	otpTTL    = 10 * time.Minute
)

// Mailer delivers login codes. Email infrastructure is external; LogMailer
// is used everywhere delivery is not wired up.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogMailer writes codes to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.Logger.Info("OTP issued", "email", email, "code", code)
	return nil
}

// OTPService implements passwordless email login: a short-lived single-use
// code stored in Redis, verified against the user's email.
type OTPService struct {
	db     *gorm.DB
	redis  *redis.Client
	jwt    *JWTService
	mailer Mailer
}

func NewOTPService(db *gorm.DB, rdb *redis.Client, jwt *JWTService, mailer Mailer) *OTPService {
	return &OTPService{db: db, redis: rdb, jwt: jwt, mailer: mailer}
}

func otpKey(email string) string {
	return "otp:" + email
}

// Request issues a fresh code for the email, replacing any outstanding one.
// Unknown emails succeed silently so the endpoint cannot be used to probe
// which accounts exist.
func (s *OTPService) Request(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", email, true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	code, err := generateOTP()
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, otpKey(email), code, otpTTL).Err(); err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}

	return s.mailer.SendOTP(ctx, email, code)
}

// Verify consumes the code and returns a session token on success. Codes
// are single-use: the key is deleted before the token is issued.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*AuthResponse, error) {
	stored, err := s.redis.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPInvalid
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, ErrOTPInvalid
	}

	if err := s.redis.Del(ctx, otpKey(email)).Err(); err != nil {
		return nil, fmt.Errorf("consuming otp: %w", err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	// A completed OTP login proves control of the mailbox
	if !user.EmailVerified {
		if err := s.db.WithContext(ctx).Model(&user).Update("email_verified", true).Error; err != nil {
			return nil, err
		}
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: &user}, nil
}

func generateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}
