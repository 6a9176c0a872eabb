package supabase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/maltresponse/internal/model"
)

// accessTokenClaims はプロバイダーが発行するアクセストークンのクレーム。
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (c *accessTokenClaims) toModel() *model.Claims {
	claims := &model.Claims{
		Subject: c.Subject,
		Email:   c.Email,
		Role:    c.Role,
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims
}

// verifyAccessToken はHS256で署名されたアクセストークンをローカルで検証する。
func verifyAccessToken(token, secret string, now func() time.Time) (*model.Claims, error) {
	var parsed accessTokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if parsed.Subject == "" {
		return nil, fmt.Errorf("invalid access token: missing subject")
	}
	return parsed.toModel(), nil
}

// readUnverifiedClaims は署名を検証せずにクレームを読み出す。
// プロバイダーへの照会で有効性を確認済みのトークンに対してのみ使用する。
func readUnverifiedClaims(token string) (*accessTokenClaims, error) {
	var parsed accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
