package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetvault/internal/core"
)

// handleListUsers lists all accounts, newest first.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.ListUsers(r.Context(), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCreateUser creates an account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in core.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	profile, err := s.users.CreateUser(ctx, currentUser(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created",
		"user":    profile,
	})
}

// handleUpdateUser applies a partial update to an account.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var ch core.UserChanges
	if err := decodeJSON(w, r, &ch); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	profile, err := s.users.UpdateUser(ctx, currentUser(r), id, ch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated",
		"user":    profile,
	})
}

// handleDeleteUser deletes an account other than the caller's own.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.users.DeleteUser(ctx, currentUser(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}
