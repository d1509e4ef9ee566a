package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// localIssuer は開発用トークンの発行者。
const localIssuer = "imagegate-dev"

// LocalClaims は開発用トークンのクレーム。
type LocalClaims struct {
	jwt.RegisteredClaims
	// UserID はユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// LocalVerifier はHS256で署名された開発用トークンを検証するVerifier。
// Firebaseを用意できないローカル開発環境でのみ使用する。
type LocalVerifier struct {
	secret []byte
}

// NewLocalVerifier は新しいLocalVerifierを生成する。
func NewLocalVerifier(secret string) *LocalVerifier {
	return &LocalVerifier{secret: []byte(secret)}
}

// IssueLocalToken は開発用トークンを生成する。
func IssueLocalToken(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := LocalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    localIssuer,
			Subject:   userID,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Lookup は開発用トークンを検証し、クレームのユーザーを返す。
func (v *LocalVerifier) Lookup(_ context.Context, credential string) ([]Identity, error) {
	claims := &LocalClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
	)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &RejectedError{Reason: "invalid or expired authentication token"}
		}
		return nil, &RejectedError{Reason: "invalid authentication token"}
	}
	if claims.UserID == "" {
		return nil, nil
	}
	return []Identity{{ID: claims.UserID, Email: claims.Email}}, nil
}
