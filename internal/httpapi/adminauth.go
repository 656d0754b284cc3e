package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"

	oidc "github.com/coreos/go-oidc/v3/oidc"

	"ragqa/internal/config"
)

// adminAuth verifies bearer tokens on the operator-only cache endpoints
// against an OIDC provider's discovery document. It is a thin verifier, not
// the full browser login flow: /v1/cache/* is called by operators and
// automation holding an already-issued access token, never by a browser
// completing a redirect.
type adminAuth struct {
	issuer   string
	audience string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
	initErr  error
}

func newAdminAuth(cfg config.AdminOIDCConfig) *adminAuth {
	return &adminAuth{issuer: cfg.Issuer, audience: cfg.Audience}
}

// enabled reports whether an issuer has been configured; with none set the
// cache endpoints stay open, matching local/dev deployments that have no
// identity provider at all.
func (a *adminAuth) enabled() bool {
	return a != nil && a.issuer != ""
}

func (a *adminAuth) verifierFor(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verifier != nil || a.initErr != nil {
		return a.verifier, a.initErr
	}
	provider, err := oidc.NewProvider(ctx, a.issuer)
	if err != nil {
		a.initErr = err
		return nil, err
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: a.audience})
	return a.verifier, nil
}

// middleware rejects requests without a valid bearer token when enabled,
// and is a no-op otherwise.
func (a *adminAuth) middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			next(w, r)
			return
		}

		rawToken := bearerToken(r)
		if rawToken == "" {
			respondJSON(w, errorBody{Error: "unauthorized", Detail: "missing bearer token", Code: "unauthorized"})
			return
		}

		verifier, err := a.verifierFor(r.Context())
		if err != nil {
			respondJSON(w, errorBody{Error: "unauthorized", Detail: "oidc provider unavailable", Code: "unauthorized"})
			return
		}
		if _, err := verifier.Verify(r.Context(), rawToken); err != nil {
			respondJSON(w, errorBody{Error: "unauthorized", Detail: "token verification failed", Code: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
