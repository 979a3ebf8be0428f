// Package auth issues and verifies the JWT bearer tokens that gate the
// municipal endpoints. A token binds a username to one MC code; every
// protected handler checks the token's MC against the MC it is about to
// touch.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smartwater-ai/smartwater-backend/internal/database"
	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
)

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	Username string `json:"username"`
	MCCode   string `json:"mc_code"`
}

// Service handles login and token verification.
type Service struct {
	repo      *database.Repository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates an auth service over the user store.
func NewService(repo *database.Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
	}
}

// LoginResult is the successful login payload.
type LoginResult struct {
	Token  string `json:"token"`
	MCCode string `json:"mc_code"`
	MCName string `json:"mc_name"`
}

// Login checks credentials against the user store and issues a token. Any
// mismatch of username, password or MC code yields the same authorization
// error so the response does not reveal which part was wrong.
func (s *Service) Login(username, password, mcCode string) (*LoginResult, error) {
	user, err := s.repo.GetUserForLogin(username, mcCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewAuthorizationError("Invalid username, password, or corporation")
	}
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to look up user account", err)
	}

	if !verifyPassword(password, user.PasswordHash) {
		return nil, apperrors.NewAuthorizationError("Invalid username, password, or corporation")
	}

	token, err := s.GenerateToken(user.Username, user.MCCode)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to issue session token", err)
	}

	return &LoginResult{Token: token, MCCode: user.MCCode, MCName: user.MCName}, nil
}

// GenerateToken signs a token carrying the username and MC code.
func (s *Service) GenerateToken(username, mcCode string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"username": username,
		"mc_code":  mcCode,
		"exp":      now.Add(s.tokenTTL).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken validates a token and returns the identity it carries.
func (s *Service) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	username, ok := claims["username"].(string)
	if !ok {
		return nil, fmt.Errorf("username not found in token")
	}
	mcCode, ok := claims["mc_code"].(string)
	if !ok {
		return nil, fmt.Errorf("mc_code not found in token")
	}

	return &Identity{Username: username, MCCode: mcCode}, nil
}

// HashPassword returns the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func verifyPassword(password, storedHash string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
