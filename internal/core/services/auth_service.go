package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/pkg/utils"
)

// Both validation failures wrap the domain sentinel; expiry keeps its own
// identity so callers can tell a stale token from a forged one.
var (
	ErrInvalidToken = fmt.Errorf("%w: bad signature or claims", domain.ErrTokenInvalid)
	ErrExpiredToken = fmt.Errorf("%w: expired", domain.ErrTokenInvalid)
)

type AuthService interface {
	// IssueToken signs a token for the user, expiring at the user's
	// program-end boundary.
	IssueToken(user *domain.User) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type Claims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret         []byte
	issuer            string
	defaultProgramEnd string
}

func NewAuthService(jwtSecret, issuer, defaultProgramEnd string) AuthService {
	return &authService{
		jwtSecret:         []byte(jwtSecret),
		issuer:            issuer,
		defaultProgramEnd: defaultProgramEnd,
	}
}

func (s *authService) IssueToken(user *domain.User) (string, error) {
	now := utils.Now()

	programEnd := user.ProgramEnd
	if programEnd == "" {
		programEnd = s.defaultProgramEnd
	}
	expiry, err := utils.EndOfProgram(programEnd, now)
	if err != nil {
		expiry, err = utils.EndOfProgram(s.defaultProgramEnd, now)
		if err != nil {
			return "", err
		}
	}

	claims := &Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return utils.Now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
