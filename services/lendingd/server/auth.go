package server

import (
	"net/http"
	"strings"

	"kylix/services/lendingd/config"
)

// authenticator guards mutating endpoints. Requests must present either a
// configured API token or an mTLS client certificate with an allowed common
// name. With no authenticator configured every request passes.
type authenticator struct {
	tokens       map[string]struct{}
	commonNames  map[string]struct{}
	allowByToken bool
	allowByMTLS  bool
}

func newAuthenticator(cfg config.AuthConfig) *authenticator {
	tokens := make(map[string]struct{})
	for _, token := range cfg.APITokens {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		tokens[trimmed] = struct{}{}
	}
	commonNames := make(map[string]struct{})
	for _, name := range cfg.MTLS.AllowedCommonNames {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		commonNames[trimmed] = struct{}{}
	}
	return &authenticator{
		tokens:       tokens,
		commonNames:  commonNames,
		allowByToken: len(tokens) > 0,
		allowByMTLS:  len(commonNames) > 0,
	}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authenticate(r) {
			writeJSONError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *authenticator) authenticate(r *http.Request) bool {
	if a == nil || (!a.allowByToken && !a.allowByMTLS) {
		return true
	}
	if a.allowByToken && a.authenticateByToken(r) {
		return true
	}
	return a.allowByMTLS && a.authenticateByMTLS(r)
}

func (a *authenticator) authenticateByToken(r *http.Request) bool {
	if token := parseBearerToken(r.Header.Get("Authorization")); token != "" {
		if _, exists := a.tokens[token]; exists {
			return true
		}
	}
	if token := strings.TrimSpace(r.Header.Get("X-Api-Token")); token != "" {
		_, exists := a.tokens[token]
		return exists
	}
	return false
}

func (a *authenticator) authenticateByMTLS(r *http.Request) bool {
	if r.TLS == nil {
		return false
	}
	for _, chain := range r.TLS.VerifiedChains {
		if len(chain) == 0 {
			continue
		}
		if a.commonNameAllowed(chain[0].Subject.CommonName) {
			return true
		}
	}
	return false
}

func (a *authenticator) commonNameAllowed(name string) bool {
	_, ok := a.commonNames[strings.TrimSpace(name)]
	return ok
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
