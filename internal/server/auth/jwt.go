package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the username, which is also the subject.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

func signingMethod(name string) (jwt.SigningMethod, error) {
	m := jwt.GetSigningMethod(name)
	if _, ok := m.(*jwt.SigningMethodHMAC); !ok {
		return nil, common.ErrInvalidToken
	}
	return m, nil
}

// GenerateToken signs a token for subject that expires after validityDuration.
// method is an HMAC algorithm name such as "HS256".
func GenerateToken(subject string, secretKey []byte, method string, validityDuration time.Duration) (string, error) {
	m, err := signingMethod(method)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(m, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Username: subject,
	})

	return token.SignedString(secretKey)
}

// GetSubjectFromToken verifies signature, algorithm and expiry and returns the subject.
// Expired tokens yield common.ErrTokenExpired, everything else common.ErrInvalidToken.
func GetSubjectFromToken(tokenString string, secretKey []byte, method string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{method}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
