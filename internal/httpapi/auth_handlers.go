package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mockstash.org/internal/audit"
	"mockstash.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type changePasswordRequest struct {
	Password       string `json:"password"`
	NewPassword    string `json:"new_password"`
	RepeatPassword string `json:"repeat_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": req.Email,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.auth.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.auth.ChangePassword(r.Context(), email, req.Password, req.NewPassword, req.RepeatPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.change_password", map[string]any{
		"email": email,
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	profile, err := a.auth.Profile(r.Context(), email)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// writeAuthError maps identity errors. Credential failures are deliberately
// vague 400s so the endpoint does not confirm which part was wrong.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotFound):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "email or password is incorrect")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "email is already registered")
	default:
		writeProblem(w, r, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeProblem(w, r, http.StatusBadRequest, "Bad Request", "request body is required")
		} else {
			writeProblem(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		}
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "unexpected data after JSON body")
		return false
	}
	return true
}
