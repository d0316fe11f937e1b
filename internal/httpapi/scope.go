package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"mockstash.org/internal/audit"
	"mockstash.org/internal/auth"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	errInvalidScheme = errors.New("invalid authorization scheme")
	errMissingBearer = errors.New("missing bearer token")
)

// withIdentity attaches the verified user identity when a bearer credential
// is presented. A present-but-invalid credential is rejected outright rather
// than silently falling through to IP scoping. Preflight requests never get
// here; CORS answers them earlier in the chain.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(header)
		if err != nil {
			writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), claims.Subject, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveScope decides the tenancy key for the non-token route family:
// a verified identity wins, otherwise the caller address is the boundary.
func resolveScope(r *http.Request) docstore.Scope {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return docstore.UserScope(userID)
	}
	return docstore.IPScope(clientIP(r))
}

// resolveToken resolves the token family scope from the path. The value must
// look like a canonical UUID before any store round-trip. When provision is
// true (write operation) an unknown value is registered on first use;
// read/update/delete require a pre-existing token.
func (a *API) resolveToken(w http.ResponseWriter, r *http.Request, provision bool) (docstore.AccessToken, bool) {
	raw := strings.TrimSpace(r.PathValue("token"))
	if _, err := uuid.Parse(raw); err != nil {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid token")
		return docstore.AccessToken{}, false
	}

	tok, err := a.docs.FindToken(r.Context(), raw)
	switch {
	case err == nil:
		// fall through to expiry check
	case provision && errors.Is(err, docstore.ErrNotFound):
		ip := clientIP(r)
		if ip == "" {
			writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "caller address could not be determined")
			return docstore.AccessToken{}, false
		}
		tok, err = a.docs.ProvisionToken(r.Context(), raw, ip)
		if err != nil {
			writeStoreError(w, r, err)
			return docstore.AccessToken{}, false
		}
		obs.TokenIssued()
		_ = audit.LogEvent(r.Context(), "token.provision", map[string]any{
			"token_id":  tok.ID,
			"issuer_ip": ip,
		})
	case errors.Is(err, docstore.ErrNotFound):
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid token")
		return docstore.AccessToken{}, false
	default:
		writeStoreError(w, r, err)
		return docstore.AccessToken{}, false
	}

	if tok.ExpiredAt(time.Now()) {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "token expired")
		return docstore.AccessToken{}, false
	}
	return tok, true
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errInvalidScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}
