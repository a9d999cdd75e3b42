package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/stevecastle/galleria/auth"
	"github.com/stevecastle/galleria/renderer"
)

// TokenCookie carries the session token for page requests.
const TokenCookie = "token"

type claimsKey struct{}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the authenticated caller, if any.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok && c != nil
}

func userIDOf(r *http.Request) string {
	if c, ok := ClaimsFrom(r.Context()); ok {
		return c.UserID
	}
	return ""
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func authMiddleware(deps *Dependencies) func(http.Handler, renderer.AuthRole) http.Handler {
	return func(next http.Handler, role renderer.AuthRole) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFromRequest(r)
			if tok != "" {
				if claims, err := deps.Auth.VerifyToken(tok); err == nil {
					// Tokens outlive deleted accounts.
					if _, err := deps.Auth.GetUser(claims.UserID); err == nil {
						next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
						return
					}
				}
			}
			if role == renderer.RolePage {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
