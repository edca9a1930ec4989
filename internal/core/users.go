package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/auth"
	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// UserProfile is the public view of a user.
type UserProfile struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	IsAdmin     bool       `json:"is_admin"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLogin   *time.Time `json:"last_login"`
}

// Profile returns the public view of u.
func Profile(u *store.User) UserProfile {
	return UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		IsAdmin:     u.IsAdmin(),
		DateJoined:  u.DateJoined,
		LastLogin:   u.LastLogin,
	}
}

// LoginUser is the user summary returned on login.
type LoginUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// LoginResult is the result of Login.
type LoginResult struct {
	auth.Pair
	User LoginUser `json:"user"`
}

// UserList is the result of ListUsers.
type UserList struct {
	Users []UserProfile `json:"users"`
	Total int           `json:"total"`
}

// NewUser holds the fields of a user to create.
type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

// UserChanges holds the fields of a partial user update. Nil fields are
// left unchanged.
type UserChanges struct {
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	IsActive  *bool   `json:"is_active"`
	IsStaff   *bool   `json:"is_staff"`
}

// UserService authenticates users and manages accounts.
type UserService struct {
	db     *store.DB
	users  *store.Users
	issuer *auth.Issuer
	audit  *AuditService
	now    func() time.Time
}

// NewUserService returns a user service signing tokens with issuer.
func NewUserService(db *store.DB, issuer *auth.Issuer) *UserService {
	return &UserService{
		db:     db,
		users:  store.NewUsers(db),
		issuer: issuer,
		audit:  NewAuditService(db),
		now:    time.Now,
	}
}

// Login checks credentials and issues a token pair. A legacy password hash
// is replaced by a bcrypt hash on success.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, invalid("username and password are required")
	}
	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, upgrade := auth.CheckPassword(u.Password, password)
	if !ok || !u.IsActive {
		logging.FromContext(ctx).Warn("login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}

	if upgrade {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.users.SetPassword(ctx, u.ID, hash); err != nil {
				logging.FromContext(ctx).Warn("password hash upgrade failed", "user_id", u.ID, "error", err)
			}
		}
	}
	if err := s.users.TouchLogin(ctx, u.ID, s.now()); err != nil {
		logging.FromContext(ctx).Warn("last login update failed", "user_id", u.ID, "error", err)
	}

	pair, err := s.issuer.Issue(u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("user logged in", "user_id", u.ID)
	return &LoginResult{
		Pair: pair,
		User: LoginUser{ID: u.ID, Username: u.Username, FullName: u.FullName(), IsAdmin: u.IsAdmin()},
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *UserService) Refresh(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		return "", invalid("refresh token is required")
	}
	access, claims, err := s.issuer.Refresh(refresh)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if _, err := s.active(ctx, claims.UserID); err != nil {
		return "", err
	}
	return access, nil
}

// Authenticate resolves the active user an access token was issued to.
func (s *UserService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	claims, err := s.issuer.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return s.active(ctx, claims.UserID)
}

func (s *UserService) active(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// ListUsers returns every user, newest first.
func (s *UserService) ListUsers(ctx context.Context, actor *store.User) (*UserList, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := &UserList{Users: make([]UserProfile, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, Profile(u))
	}
	out.Total = len(out.Users)
	return out, nil
}

// CreateUser creates an account on behalf of an administrator.
func (s *UserService) CreateUser(ctx context.Context, actor *store.User, in NewUser) (*UserProfile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.CreateAccount(ctx, in)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditLogParams{
		Action: ActionUserCreate,
		Detail: map[string]any{"user_id": u.ID, "username": u.Username, "is_staff": u.IsStaff},
	})
	p := Profile(u)
	return &p, nil
}

// CreateAccount creates an active account. Staff accounts are also
// superusers.
func (s *UserService) CreateAccount(ctx context.Context, in NewUser) (*store.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, invalid("username and password are required")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	taken, err := s.users.UsernameTaken(ctx, username, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Create(ctx, &store.User{
		Username:    username,
		Password:    hash,
		Email:       strings.TrimSpace(in.Email),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		IsActive:    true,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsStaff,
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// UpdateUser applies a partial update. A password shorter than the minimum
// is ignored.
func (s *UserService) UpdateUser(ctx context.Context, actor *store.User, id int64, ch UserChanges) (*UserProfile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}

	if ch.Username != nil {
		name := strings.TrimSpace(*ch.Username)
		if name == "" {
			return nil, invalid("username cannot be empty")
		}
		taken, err := s.users.UsernameTaken(ctx, name, u.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, name)
		}
		u.Username = name
	}
	if ch.Email != nil {
		u.Email = strings.TrimSpace(*ch.Email)
	}
	if ch.FirstName != nil {
		u.FirstName = strings.TrimSpace(*ch.FirstName)
	}
	if ch.LastName != nil {
		u.LastName = strings.TrimSpace(*ch.LastName)
	}
	if ch.IsActive != nil {
		u.IsActive = *ch.IsActive
	}
	if ch.IsStaff != nil {
		u.IsStaff = *ch.IsStaff
		u.IsSuperuser = *ch.IsStaff
	}
	passwordChanged := false
	if ch.Password != nil && auth.ValidatePassword(*ch.Password) == nil {
		hash, err := auth.HashPassword(*ch.Password)
		if err != nil {
			return nil, err
		}
		u.Password = hash
		passwordChanged = true
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditLogParams{
		Action: ActionUserUpdate,
		Detail: map[string]any{"user_id": u.ID, "username": u.Username, "password_changed": passwordChanged},
	})
	p := Profile(u)
	return &p, nil
}

// DeleteUser removes an account other than the actor's.
func (s *UserService) DeleteUser(ctx context.Context, actor *store.User, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if actor.ID == id {
		return invalid("you cannot delete your own account")
	}
	u, err := s.user(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, AuditLogParams{
		Action: ActionUserDelete,
		Detail: map[string]any{"user_id": u.ID, "username": u.Username},
	})
	return nil
}

// ChangePassword replaces the password of user after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, user *store.User, oldPassword, newPassword string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if oldPassword == "" || newPassword == "" {
		return invalid("old and new password are required")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if ok, _ := auth.CheckPassword(user.Password, oldPassword); !ok {
		return invalid("current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.audit.Record(ctx, user, AuditLogParams{Action: ActionPasswordChange})
	return nil
}

// SetupResult is the result of Setup.
type SetupResult struct {
	Message    string      `json:"message"`
	Migrations int         `json:"migrations"`
	Created    bool        `json:"created"`
	Username   string      `json:"username"`
	Data       *LoadReport `json:"data,omitempty"`
}

// Setup applies pending migrations and creates an administrator unless the
// username already exists.
func (s *UserService) Setup(ctx context.Context, username, password string) (*SetupResult, error) {
	n, err := s.db.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	res := &SetupResult{Migrations: n, Username: strings.TrimSpace(username)}

	_, err = s.users.GetByUsername(ctx, res.Username)
	switch {
	case err == nil:
		res.Message = "Setup complete, administrator already exists"
		return res, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if _, err := s.CreateAccount(ctx, NewUser{Username: res.Username, Password: password, IsStaff: true}); err != nil {
		return nil, err
	}
	res.Created = true
	res.Message = "Setup complete, administrator created"
	return res, nil
}

// LoadSetupData loads the dump at path into the cache, mapping file paths
// into folder. Entries that already exist are skipped.
func (s *UserService) LoadSetupData(ctx context.Context, path, folder string) (*LoadReport, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: setup data file %s not found", ErrInvalidInput, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dump, err := ReadDump(f)
	if err != nil {
		return nil, err
	}
	report, err := LoadDump(ctx, s.db, dump, folder)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("setup data loaded", "file", path,
		"files_created", report.FilesCreated, "sheets_created", report.SheetsCreated)
	return report, nil
}

func (s *UserService) user(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return u, err
}

func requireAdmin(u *store.User) error {
	if u == nil {
		return ErrUnauthenticated
	}
	if !u.IsAdmin() {
		return fmt.Errorf("%w: administrator access required", ErrForbidden)
	}
	return nil
}
