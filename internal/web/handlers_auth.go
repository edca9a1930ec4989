package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetvault/internal/core"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials for an access/refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	if in.Username == "" || in.Password == "" {
		respondError(w, r, core.ErrInvalidCredentials)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.users.Login(ctx, in.Username, in.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTokenRefresh issues a new access token from a refresh token.
func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	if in.Refresh == "" {
		respondError(w, r, core.ErrUnauthenticated)
		return
	}

	access, err := s.users.Refresh(r.Context(), in.Refresh)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// handleSetup applies migrations and creates the first administrator. With
// load_data=true it also loads the configured dump.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.users.Setup(r.Context(), in.Username, in.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("load_data"), "true") {
		res.Data, err = s.users.LoadSetupData(r.Context(), s.cfg.Auth.SetupDataFile, s.cfg.Storage.ExcelFolder)
		if err != nil {
			respondError(w, r, err)
			return
		}
		res.Message = fmt.Sprintf("Data loaded: %d file(s), %d sheet(s)", res.Data.FilesCreated, res.Data.SheetsCreated)
	}
	writeJSON(w, http.StatusOK, res)
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Profile(currentUser(r)))
}

// handleChangePassword changes the authenticated user's password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.users.ChangePassword(ctx, currentUser(r), in.OldPassword, in.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}
