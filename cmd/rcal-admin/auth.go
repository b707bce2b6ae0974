package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/golang-jwt/jwt/v5"
)

// rcalModel is a minimal request-based RBAC model: a subject's role
// must have a policy line granting (object, action) before the request
// proceeds. Calendar keys are the objects; HTTP methods map to actions
// via methodAction.
const rcalModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && r.act == p.act
`

// rcalPolicy grants the built-in "admin" role unrestricted access and
// "viewer" read-only access to every calendar key.
const rcalPolicy = `
p, admin, /cal/*, GET
p, admin, /cal/*, POST
p, admin, /cal/*, PUT
p, admin, /cal/*, DELETE
p, viewer, /cal/*, GET
`

// Claims is the JWT payload an rcal-admin bearer token carries: the
// caller's role, used by the casbin enforcer as the RBAC subject.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies bearer tokens for the admin API.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer constructs a TokenIssuer from a shared HMAC secret.
func NewTokenIssuer(secret []byte) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &TokenIssuer{secret: secret}, nil
}

// Issue signs a new bearer token granting role, carrying the given
// registered claims (expiry, subject, and so on) unchanged.
func (t *TokenIssuer) Issue(role string, claims jwt.RegisteredClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: role, RegisteredClaims: claims})
	return tok.SignedString(t.secret)
}

func (t *TokenIssuer) parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authorizer enforces the RBAC policy above a calendar-key-scoped
// route.
type Authorizer struct {
	issuer   *TokenIssuer
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds the casbin enforcer from the embedded model and
// policy and pairs it with issuer for bearer-token verification.
func NewAuthorizer(issuer *TokenIssuer) (*Authorizer, error) {
	m, err := casbinmodel.NewModelFromString(rcalModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(rcalPolicy), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(strings.TrimPrefix(line, "p,"), ",")
		var rule []string
		for _, f := range fields {
			rule = append(rule, strings.TrimSpace(f))
		}
		if _, err := enforcer.AddPolicy(rule); err != nil {
			return nil, fmt.Errorf("load policy line %q: %w", line, err)
		}
	}
	return &Authorizer{issuer: issuer, enforcer: enforcer}, nil
}

type ctxKey int

const ctxKeyRole ctxKey = iota

// methodAction maps an HTTP verb onto the casbin action vocabulary.
func methodAction(method string) string { return method }

// Middleware validates the bearer token and enforces RBAC against the
// request path (used as the casbin object, keyMatch2-style wildcarded)
// and method.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := a.issuer.parse(token)
		if err != nil {
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}
		allowed, err := a.enforcer.Enforce(claims.Role, r.URL.Path, methodAction(r.Method))
		if err != nil {
			http.Error(w, "authorization check failed", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
