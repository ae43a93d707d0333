package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/server"
)

// continuationState is the authorization request parked in the cookie while
// the user logs in through the host.
type continuationState struct {
	Request   server.AuthorizationRequest `json:"request"`
	CreatedAt int64                       `json:"created_at"`
}

// setContinuationCookie parks an authorization request in the continuation
// cookie. The payload is sealed when a key is configured, which makes the
// cookie tamper-evident; without a key it is plain base64 JSON and the
// resume path must treat it as untrusted input either way.
func (h *Handler) setContinuationCookie(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest) error {
	state := continuationState{
		Request:   *req,
		CreatedAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode continuation: %w", err)
	}

	value, err := h.server.Sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal continuation: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     ContinuationCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.server.Config.ContinuationTTL),
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.server.Config.Issuer, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// clearContinuationCookie removes the continuation cookie. It runs on every
// consume attempt, successful or not, so a bad cookie cannot loop.
func (h *Handler) clearContinuationCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ContinuationCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// readContinuationCookie decodes and validates the continuation cookie.
// Returns nil without error when no cookie is present.
func (h *Handler) readContinuationCookie(r *http.Request) (*server.AuthorizationRequest, error) {
	cookie, err := r.Cookie(ContinuationCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	payload, err := h.server.Sealer.Open(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("continuation cookie rejected: %w", err)
	}

	var state continuationState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("continuation cookie malformed: %w", err)
	}

	age := time.Now().Unix() - state.CreatedAt
	if age < 0 || age > h.server.Config.ContinuationTTL {
		return nil, fmt.Errorf("continuation cookie expired")
	}
	if state.Request.ClientID == "" || state.Request.RedirectURI == "" {
		return nil, fmt.Errorf("continuation cookie incomplete")
	}

	return &state.Request, nil
}
