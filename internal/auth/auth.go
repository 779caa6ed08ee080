package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier проверяет bearer токен и возвращает его атрибуты
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*models.Claims, error)
}

// tokenClaims атрибуты, которые мы читаем из токена провайдера
type tokenClaims struct {
	Email           string   `json:"email"`
	Username        string   `json:"username"`
	CognitoUsername string   `json:"cognito:username"`
	CognitoGroups   []string `json:"cognito:groups"`
	Groups          []string `json:"groups"`
}

func (c tokenClaims) toModel(subject string) *models.Claims {
	username := c.Username
	if username == "" {
		username = c.CognitoUsername
	}
	groups := c.Groups
	if len(groups) == 0 {
		groups = c.CognitoGroups
	}
	return &models.Claims{
		Subject:  subject,
		Email:    c.Email,
		Username: username,
		Groups:   groups,
	}
}

// OIDCVerifier проверяет токены провайдера по его JWKS (discovery по issuer)
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier без clientID проверка audience пропускается: access token Cognito не содержит aud
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:          clientID,
			SkipClientIDCheck: clientID == "",
		}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*models.Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims tokenClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.toModel(token.Subject), nil
}

// hmacClaims формат токенов HMACVerifier
type hmacClaims struct {
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier проверяет HS256 токены с общим секретом. Для разработки и тестов.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HMACVerifier) Verify(ctx context.Context, rawToken string) (*models.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return tokenClaims{Email: claims.Email, Username: claims.Username, Groups: claims.Groups}.toModel(claims.Subject), nil
}

// Issue подписывает токен для заданных атрибутов
func (v *HMACVerifier) Issue(claims models.Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, hmacClaims{
		Email:    claims.Email,
		Username: claims.Username,
		Groups:   claims.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
