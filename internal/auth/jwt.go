// Package auth 实时通道的 JWT 鉴权
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

var (
	ErrMissingToken  = apperr.ErrUnauthorized.WithMessage("missing token")
	ErrInvalidToken  = apperr.ErrUnauthorized.WithMessage("invalid token")
	ErrExpiredToken  = apperr.ErrUnauthorized.WithMessage("token expired")
	ErrUserMismatch  = apperr.ErrUnauthorized.WithMessage("token does not belong to this user")
	ErrInvalidSecret = errors.New("auth: secret must not be empty")
)

// Config 鉴权配置（auth.*）
type Config struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{Issuer: "pawchat", Expiration: 24 * time.Hour}
}

// Claims 令牌载荷
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWT HS256 令牌签发与校验，实现 ws.Authenticator
type JWT struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

type expectedUserKey struct{}

// WithExpectedUser 声明请求路径中的用户 ID，Authenticate 要求令牌属于该用户
func WithExpectedUser(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, expectedUserKey{}, raw)
}

// New 创建 JWT
func New(cfg Config) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, ErrInvalidSecret
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultConfig().Expiration
	}
	j := &JWT{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
		now:        time.Now,
	}
	return j, nil
}

// Issue 为用户签发令牌
func (j *JWT) Issue(userID uuid.UUID) (string, error) {
	now := j.now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify 校验令牌并返回用户 ID
func (j *JWT) Verify(token string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpiredToken.WithError(err)
		}
		return uuid.Nil, ErrInvalidToken.WithError(err)
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken.WithError(err)
	}
	return id, nil
}

// Authenticate 从 ?token= 或 Authorization: Bearer 读取令牌
func (j *JWT) Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return uuid.Nil, ErrMissingToken
	}
	userID, err := j.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}

	if raw, ok := ctx.Value(expectedUserKey{}).(string); ok {
		want, err := uuid.Parse(raw)
		if err != nil || want != userID {
			return uuid.Nil, ErrUserMismatch
		}
	}
	return userID, nil
}

func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
