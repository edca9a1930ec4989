package core

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/JonMunkholm/sheetvault/internal/auth"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

func newUserService(t *testing.T) (*UserService, *store.DB) {
	t.Helper()
	db := newTestDB(t)
	issuer, err := auth.NewIssuer("test-secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return NewUserService(db, issuer), db
}

func TestLoginAndRefresh(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.CreateAccount(ctx, NewUser{Username: "marie", Password: "radium", FirstName: "Marie"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "marie", "radium")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Access)
	assert.NotEmpty(t, res.Refresh)
	assert.Equal(t, "Marie", res.User.FullName)
	assert.False(t, res.User.IsAdmin)

	u, err := svc.Authenticate(ctx, res.Access)
	require.NoError(t, err)
	assert.Equal(t, "marie", u.Username)
	require.NotNil(t, u.LastLogin)

	access, err := svc.Refresh(ctx, res.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	_, err = svc.Refresh(ctx, res.Access)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Login(ctx, "marie", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ghost", "radium")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()
	u, err := svc.CreateAccount(ctx, NewUser{Username: "pierre", Password: "polonium"})
	require.NoError(t, err)
	u.IsActive = false
	require.NoError(t, store.NewUsers(db).Update(ctx, u))

	_, err = svc.Login(ctx, "pierre", "polonium")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()
	users := store.NewUsers(db)

	salt := "c2FsdA"
	key := pbkdf2.Key([]byte("uranium"), []byte(salt), 1000, 32, sha256.New)
	legacy := fmt.Sprintf("pbkdf2_sha256$1000$%s$%s", salt, base64.StdEncoding.EncodeToString(key))
	_, err := users.Create(ctx, &store.User{Username: "henri", Password: legacy, IsActive: true})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "henri", "uranium")
	require.NoError(t, err)

	u, err := users.GetByUsername(ctx, "henri")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(u.Password, "pbkdf2_sha256$"))
	ok, upgrade := auth.CheckPassword(u.Password, "uranium")
	assert.True(t, ok)
	assert.False(t, upgrade)
}

func TestUserAdministration(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	admin, err := svc.CreateAccount(ctx, NewUser{Username: "admin", Password: "secret", IsStaff: true})
	require.NoError(t, err)
	assert.True(t, admin.IsSuperuser)

	member, err := svc.CreateUser(ctx, admin, NewUser{Username: "marie", Password: "radium"})
	require.NoError(t, err)
	memberUser, err := svc.users.GetByID(ctx, member.ID)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, admin, NewUser{Username: "marie", Password: "radium"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = svc.CreateUser(ctx, admin, NewUser{Username: "court", Password: "abc"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateUser(ctx, memberUser, NewUser{Username: "x", Password: "abcd"})
	assert.ErrorIs(t, err, ErrForbidden)

	list, err := svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)

	staff := true
	short := "abc"
	updated, err := svc.UpdateUser(ctx, admin, member.ID, UserChanges{IsStaff: &staff, Password: &short})
	require.NoError(t, err)
	assert.True(t, updated.IsStaff)
	assert.True(t, updated.IsSuperuser)
	_, err = svc.Login(ctx, "marie", "radium")
	require.NoError(t, err, "a too short password is ignored on update")

	taken := "admin"
	_, err = svc.UpdateUser(ctx, admin, member.ID, UserChanges{Username: &taken})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = svc.UpdateUser(ctx, admin, 9999, UserChanges{})
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = svc.DeleteUser(ctx, admin, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, svc.DeleteUser(ctx, admin, member.ID))

	list, err = svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	u, err := svc.CreateAccount(ctx, NewUser{Username: "marie", Password: "radium"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u, "wrong", "polonium"), ErrInvalidInput)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u, "radium", "po"), ErrInvalidInput)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u, "", "polonium"), ErrInvalidInput)
	require.NoError(t, svc.ChangePassword(ctx, u, "radium", "polonium"))

	_, err = svc.Login(ctx, "marie", "polonium")
	require.NoError(t, err)
}

func TestSetup(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	res, err := svc.Setup(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.True(t, res.Created)

	login, err := svc.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.True(t, login.User.IsAdmin)

	again, err := svc.Setup(ctx, "admin", "other")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, 0, again.Migrations)
}

func TestLoadSetupData(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data_export.json")
	require.NoError(t, os.WriteFile(path, []byte(dumpFixture), 0o644))

	report, err := svc.LoadSetupData(ctx, path, "/data/excel")
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesCreated)
	assert.Equal(t, 2, report.SheetsCreated)

	f, err := store.NewFiles(db).GetByFilename(ctx, "Escales.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "/data/excel/Escales.xlsx", f.FilePath)

	_, err = svc.LoadSetupData(ctx, filepath.Join(t.TempDir(), "absent.json"), "/data/excel")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
