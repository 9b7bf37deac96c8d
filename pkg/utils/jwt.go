package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret = []byte("secret")

// SetSecret allows injecting the secret from config
func SetSecret(secret string) {
	jwtSecret = []byte(secret)
}

// CallbackClaims authenticate queue-dispatched stage callbacks. The token is
// minted at publish time and verified by the /internal routes, so only tasks
// that went through the queue can drive the workers.
type CallbackClaims struct {
	TaskID      string `json:"task_id"`
	ImportJobID string `json:"import_job_id"`
	jwt.RegisteredClaims
}

func GenerateCallbackToken(taskID, importJobID string, ttl time.Duration) (string, error) {
	claims := CallbackClaims{
		TaskID:      taskID,
		ImportJobID: importJobID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateCallbackToken(tokenString string) (*CallbackClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CallbackClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CallbackClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenSignatureInvalid
}
