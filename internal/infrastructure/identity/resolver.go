package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/docverify/internal/core/domain"
)

var subjectClaims = []string{"sub", "user_id", "id"}

// Resolver derives the subject id of a request. The token is parsed without
// verification: the backend verifies it on every call, and only its payload
// is needed here.
type Resolver struct {
	parser *jwt.Parser
}

func NewResolver() *Resolver {
	return &Resolver{parser: jwt.NewParser()}
}

// Resolve prefers the explicit subject id and falls back to the token claims.
// The returned session has an empty SubjectID when neither source has one.
func (r *Resolver) Resolve(explicitSubject, authorization string) domain.SessionContext {
	session := domain.SessionContext{
		SubjectID:   strings.TrimSpace(explicitSubject),
		BearerToken: BearerToken(authorization),
	}
	if session.SubjectID != "" || session.BearerToken == "" {
		return session
	}
	subject, err := r.SubjectFromToken(session.BearerToken)
	if err == nil {
		session.SubjectID = subject
	}
	return session
}

func (r *Resolver) SubjectFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := r.parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: parse token: %v", domain.ErrUnauthorized, err)
	}
	for _, key := range subjectClaims {
		if value := claimString(claims[key]); value != "" {
			return value, nil
		}
	}
	return "", domain.ErrMissingIdentity
}

// BearerToken strips the scheme from an Authorization header value.
func BearerToken(authorization string) string {
	value := strings.TrimSpace(authorization)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}

func claimString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}
