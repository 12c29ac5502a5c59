package mockserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SocketClaims определяет структуру данных сокет-токена
type SocketClaims struct {
	ConversationUUID string `json:"conversationUuid"`
	UserUniqueID     string `json:"userUniqueId"`
	jwt.RegisteredClaims
}

// issueToken генерирует сокет-токен для диалога
func (s *Server) issueToken(conversationUUID, userUniqueID string) (string, error) {
	claims := &SocketClaims{
		ConversationUUID: conversationUUID,
		UserUniqueID:     userUniqueID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "ecochat-mockserver",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtKey)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// validateToken проверяет и парсит сокет-токен
func (s *Server) validateToken(tokenString string) (*SocketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SocketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return s.jwtKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("недействительный токен")
	}

	claims, ok := token.Claims.(*SocketClaims)
	if !ok {
		return nil, errors.New("неверный формат токена")
	}
	return claims, nil
}
