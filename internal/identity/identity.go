// Package identity issues and verifies the bearer tokens that carry a
// caller's verified email or phone number.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

var signingMethod = jwt.SigningMethodHS256

// Audiences separate API tokens from captcha passes signed with the same key.
const (
	audienceAPI     = "waterhq"
	audienceCaptcha = "waterhq-captcha"

	CaptchaPassTTL = 10 * time.Minute
)

// Identity is the verified claim set of a caller.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	PhoneNumber   string
}

func (i Identity) EmailClaim() string { return i.Email }
func (i Identity) EmailVerifiedClaim() bool { return i.EmailVerified }

// Claims is the token payload.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for ident that expires after the issuer's TTL.
func (i *Issuer) Issue(ident Identity) (string, error) {
	now := i.now().UTC()
	sub := ident.Subject
	if sub == "" {
		sub = ident.Email
		if sub == "" {
			sub = ident.PhoneNumber
		}
	}
	claims := Claims{
		Email:         ident.Email,
		EmailVerified: ident.EmailVerified,
		PhoneNumber:   ident.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub,
			Audience:  jwt.ClaimStrings{audienceAPI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueCaptchaPass signs a short-lived pass proving the holder solved a
// captcha. It carries no identity and is rejected by Verify.
func (i *Issuer) IssueCaptchaPass() (string, error) {
	now := i.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{audienceCaptcha},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(CaptchaPassTTL)),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign captcha pass: %w", err)
	}
	return signed, nil
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token. Any failure is reported as
// ErrInvalidToken wrapping the parser's reason.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.options(audienceAPI)...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		PhoneNumber:   claims.PhoneNumber,
	}, nil
}

// VerifyCaptchaPass reports whether pass is an unexpired captcha pass.
func (v *Verifier) VerifyCaptchaPass(pass string) error {
	_, err := jwt.ParseWithClaims(pass, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.options(audienceCaptcha)...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

func (v *Verifier) options(audience string) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
	}
}

// FromHeader extracts the token from an "Authorization: Bearer <token>" header.
func FromHeader(h http.Header) (string, error) {
	auth := h.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
