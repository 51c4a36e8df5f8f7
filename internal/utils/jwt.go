package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A link token can only be redeemed by the wallet-created
// webhook, a session token only authorizes API calls.
const (
	PurposeLink    = "link"
	PurposeSession = "session"
)

// ErrWrongTokenPurpose is returned when a token is used for something it was not issued for.
var ErrWrongTokenPurpose = errors.New("token issued for a different purpose")

type jwtCustomClaims struct {
	UserID  int64  `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenClaims is what a verified token asserts.
type TokenClaims struct {
	UserID  int64
	Purpose string
	Nonce   string
}

// GenerateToken creates a signed JWT for the chat user. The returned nonce is
// the token's unique ID.
func GenerateToken(secret string, userID int64, purpose string, ttl time.Duration) (token, nonce string, err error) {
	now := time.Now()
	nonce = uuid.NewString()
	claims := &jwtCustomClaims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return token, nonce, nil
}

// ParseToken validates the token and checks it was issued for purpose.
func ParseToken(secret, tokenString, purpose string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongTokenPurpose
	}

	return &TokenClaims{UserID: claims.UserID, Purpose: claims.Purpose, Nonce: claims.ID}, nil
}
