package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	pair, err := iss.Issue(7, "alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := iss.ParseAccess(pair.Access)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Errorf("claims = %+v, want user 7 alice", claims)
	}

	if _, err := iss.ParseAccess(pair.Refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ParseAccess(refresh) error = %v, want ErrInvalidToken", err)
	}

	access, rc, err := iss.Refresh(pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if rc.UserID != 7 {
		t.Errorf("Refresh claims user = %d, want 7", rc.UserID)
	}
	if _, err := iss.ParseAccess(access); err != nil {
		t.Errorf("ParseAccess(refreshed) error = %v", err)
	}

	if _, _, err := iss.Refresh(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh(access) error = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredAndForeignTokens(t *testing.T) {
	iss, _ := NewIssuer("s3cret", time.Minute, time.Hour)
	pair, err := iss.Issue(1, "bob")
	if err != nil {
		t.Fatal(err)
	}

	iss.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := iss.ParseAccess(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired access error = %v, want ErrInvalidToken", err)
	}

	other, _ := NewIssuer("other", time.Hour, time.Hour)
	if _, err := other.ParseAccess(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token error = %v, want ErrInvalidToken", err)
	}

	if _, err := NewIssuer("", time.Hour, time.Hour); err == nil {
		t.Error("NewIssuer(\"\") expected error")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("motdepasse")
	if err != nil {
		t.Fatal(err)
	}
	if ok, upgrade := CheckPassword(hash, "motdepasse"); !ok || upgrade {
		t.Errorf("CheckPassword(bcrypt) = %v, %v, want true, false", ok, upgrade)
	}
	if ok, _ := CheckPassword(hash, "wrong"); ok {
		t.Error("CheckPassword(bcrypt, wrong) = true")
	}

	key := pbkdf2.Key([]byte("legacy"), []byte("salt123"), 1000, 32, sha256.New)
	legacy := "pbkdf2_sha256$1000$salt123$" + base64.StdEncoding.EncodeToString(key)
	if ok, upgrade := CheckPassword(legacy, "legacy"); !ok || !upgrade {
		t.Errorf("CheckPassword(pbkdf2) = %v, %v, want true, true", ok, upgrade)
	}
	if ok, _ := CheckPassword(legacy, "nope"); ok {
		t.Error("CheckPassword(pbkdf2, wrong) = true")
	}
	if ok, _ := CheckPassword("pbkdf2_sha256$x$y", "legacy"); ok {
		t.Error("CheckPassword(malformed) = true")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		pw      string
		wantErr bool
	}{
		{"", true},
		{"abc", true},
		{"abcd", false},
		{"éééé", false},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.pw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.pw, err, tt.wantErr)
		}
	}
}
