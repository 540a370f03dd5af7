package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Operator maps an admin API bearer credential to the on-chain principal it
// acts as.
type Operator struct {
	Name    string
	Token   string
	Address common.Address
}

// Authenticator verifies admin requests before they reach handlers.
type Authenticator struct {
	operators []Operator
}

// Principal describes an authenticated operator accessing the admin API.
type Principal struct {
	Name    string
	Address common.Address
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// NewAuthenticator constructs an authenticator from operator credentials.
func NewAuthenticator(operators []Operator) (*Authenticator, error) {
	if len(operators) == 0 {
		return nil, fmt.Errorf("at least one operator must be configured")
	}
	cleaned := make([]Operator, 0, len(operators))
	for i, op := range operators {
		token := strings.TrimSpace(op.Token)
		if token == "" {
			return nil, fmt.Errorf("operator %d: token required", i)
		}
		if op.Address == (common.Address{}) {
			return nil, fmt.Errorf("operator %d: address required", i)
		}
		op.Token = token
		cleaned = append(cleaned, op)
	}
	return &Authenticator{operators: cleaned}, nil
}

// Middleware enforces authentication for admin endpoints.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		principal, ok := a.authenticate(r)
		if ok {
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, bool) {
	if a == nil || r == nil {
		return nil, false
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, false
	}
	provided := []byte(token)
	for _, op := range a.operators {
		if subtle.ConstantTimeCompare(provided, []byte(op.Token)) == 1 {
			return &Principal{Name: op.Name, Address: op.Address}, true
		}
	}
	return nil, false
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
