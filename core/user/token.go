package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var (
	NowFunc = time.Now // mockable

	SigningMethod = jwt.SigningMethodHS256

	errInvalidToken = errors.New("invalid token")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	IsStudent bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin   bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles     []string `json:"roles,omitempty"`
}

func NewClaims(usr User, issuer string, ttl time.Duration) *Claims {
	now := NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   usr.ID,
			Audience:  "Academia",
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:      usr.Name,
		Email:     usr.Email,
		IsStudent: usr.IsStudent(),
		IsTeacher: usr.IsTeacher(),
		IsAdmin:   usr.IsAdmin(),
		Roles:     usr.Roles,
	}
}

// User rebuilds the actor carried by the claims.
func (c Claims) User() User {
	return User{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
		Roles: c.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(SigningMethod, claims)
	ss, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken verifies the signature and expiry of a token and returns its claims.
func ParseToken(tokenStr string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod.Alg() {
			return nil, errInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
