// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/delivery"
	"github.com/holomush/passwordless/pkg/errutil"
)

// Redirect error values appended to MagicLinkRedirect.
const (
	redirectInvalidCode = "invalid_code"
	redirectServerError = "server_error"
)

type codeRequest struct {
	Email   string       `json:"email"`
	Purpose auth.Purpose `json:"purpose,omitempty"`
	Channel auth.Channel `json:"channel"`
}

type codeResponse struct {
	ExpiresInSeconds int          `json:"expires_in_seconds"`
	DeliveryChannel  auth.Channel `json:"delivery_channel"`
}

type verifyRequest struct {
	Email   string       `json:"email"`
	Purpose auth.Purpose `json:"purpose,omitempty"`
	Code    string       `json:"code"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

func purposeOrDefault(p auth.Purpose) auth.Purpose {
	if p == "" {
		return auth.PurposeLogin
	}
	return p
}

func isInputError(err error) bool {
	return errors.Is(err, auth.ErrInvalidEmail) ||
		errors.Is(err, auth.ErrInvalidPurpose) ||
		errors.Is(err, auth.ErrInvalidChannel)
}

// requestCode issues a code and delivers it. A policy rejection answers
// exactly like a success so addresses cannot be probed.
func (h *Handler) requestCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	purpose := purposeOrDefault(req.Purpose)
	accepted := codeResponse{
		ExpiresInSeconds: int(h.deps.Issuer.TTL() / time.Second),
		DeliveryChannel:  req.Channel,
	}

	issued, err := h.deps.Issuer.Issue(r.Context(), req.Email, purpose, req.Channel)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrEmailNotAllowed):
		writeJSON(w, http.StatusAccepted, accepted)
		return
	case isInputError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	default:
		errutil.LogErrorContext(r.Context(), h.logger, "auth code issue failed", err)
		writeJSON(w, http.StatusInternalServerError, errInternal)
		return
	}

	msg, err := delivery.NewMessage(issued, h.deps.PublicURL)
	if err == nil {
		err = h.deps.Sender.Send(r.Context(), msg)
	}
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "auth code delivery failed", err)
		writeJSON(w, http.StatusInternalServerError, errInternal)
		return
	}

	writeJSON(w, http.StatusAccepted, accepted)
}

// verify checks an OTP and sets the session cookie on success. Every
// rejection shares one response body.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	session, ok := h.verifyAndIssue(w, r, req.Email, purposeOrDefault(req.Purpose), req.Code)
	if !ok {
		return
	}
	if session == nil {
		writeJSON(w, http.StatusUnauthorized, verifyResponse{Success: false, Error: auth.PublicVerifyMessage})
		return
	}
	http.SetCookie(w, h.deps.Sessions.Cookies().Cookie(session.Token))
	writeJSON(w, http.StatusOK, verifyResponse{Success: true})
}

// magic consumes a magic-link token and redirects the browser.
func (h *Handler) magic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	purpose := purposeOrDefault(auth.Purpose(q.Get("purpose")))

	result, err := h.deps.Verifier.Verify(r.Context(), q.Get("email"), purpose, q.Get("token"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPurpose) {
			h.redirect(w, r, redirectInvalidCode)
			return
		}
		errutil.LogErrorContext(r.Context(), h.logger, "magic link verification failed", err)
		h.redirect(w, r, redirectServerError)
		return
	}
	if !result.OK() {
		h.redirect(w, r, redirectInvalidCode)
		return
	}

	session, err := h.deps.Sessions.IssueSession(r.Context(), q.Get("email"))
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "session issue failed", err)
		h.redirect(w, r, redirectServerError)
		return
	}
	http.SetCookie(w, h.deps.Sessions.Cookies().Cookie(session.Token))
	h.redirect(w, r, "")
}

// verifyAndIssue returns the new session, nil for a rejected secret, or
// ok=false once an error response has been written.
func (h *Handler) verifyAndIssue(w http.ResponseWriter, r *http.Request, email string, purpose auth.Purpose, secret string) (*auth.Session, bool) {
	result, err := h.deps.Verifier.Verify(r.Context(), email, purpose, secret)
	if err != nil {
		if isInputError(err) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return nil, false
		}
		errutil.LogErrorContext(r.Context(), h.logger, "auth code verification failed", err)
		writeJSON(w, http.StatusInternalServerError, errInternal)
		return nil, false
	}
	if !result.OK() {
		return nil, true
	}

	session, err := h.deps.Sessions.IssueSession(r.Context(), email)
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "session issue failed", err)
		writeJSON(w, http.StatusInternalServerError, errInternal)
		return nil, false
	}
	return session, true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, errValue string) {
	target := h.deps.MagicLinkRedirect
	if errValue != "" {
		u, err := url.Parse(target)
		if err != nil {
			u = &url.URL{Path: "/"}
		}
		q := u.Query()
		q.Set("error", errValue)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// session reports the identity carried by the session cookie.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	claims, err := h.deps.Sessions.Signer().Parse(cookie.Value)
	if err != nil {
		h.logger.DebugContext(r.Context(), "session token rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}

func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.deps.Sessions.Cookies().Clear())
	w.WriteHeader(http.StatusNoContent)
}
