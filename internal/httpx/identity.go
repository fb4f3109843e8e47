package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

const SessionHeader = "X-Session-Token"

// Identity is the caller as established by the identity provider's token or
// an anonymous session header.
type Identity struct {
	Owner   string
	Subject string
	Admin   bool
}

// Actor is the id recorded in order history for this caller.
func (id Identity) Actor() string {
	if id.Admin {
		return "admin:" + id.Subject
	}
	return id.Owner
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Auth verifies HS256 bearer tokens. The subject becomes the owner id and a
// "role" claim of "admin" grants admin routes.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth { return &Auth{secret: []byte(secret)} }

// Middleware attaches the caller's identity when one is presented. Requests
// without credentials pass through; an invalid bearer token is rejected.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "missing bearer token"})
				return
			}
			id, err := a.parse(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "invalid token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			return
		}
		if s := strings.TrimSpace(r.Header.Get(SessionHeader)); s != "" {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), Identity{Owner: shop.AnonOwner(s)})))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) parse(raw string) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{}, jwt.ErrTokenUnverifiable
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, jwt.ErrTokenInvalidSubject
	}
	role, _ := claims["role"].(string)
	return Identity{Owner: shop.UserOwner(sub), Subject: sub, Admin: role == "admin"}, nil
}

// caller returns the request identity or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, errUnauthenticated)
	}
	return id, ok
}

func admin(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := caller(w, r)
	if ok && !id.Admin {
		writeError(w, r, shop.ErrForbidden)
		return id, false
	}
	return id, ok
}
