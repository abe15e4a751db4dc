package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestIssuer(secret string) *Issuer {
	i := New(Config{
		Secret:    secret,
		Endpoint:  "https://proxy.example/gallery",
		TTL:       time.Hour,
		Protected: true,
	}, nil)
	i.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return i
}

func hexHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// =============================================================================
// Signing Tests
// =============================================================================

func TestIssuer_SignFile(t *testing.T) {
	i := newTestIssuer("s3cret")
	signed := i.SignFile("a/b.jpg")

	wantExpires := int64(1_700_000_000 + 3600)
	if signed.Expires != wantExpires {
		t.Errorf("Expires = %d, want %d", signed.Expires, wantExpires)
	}

	want := hexHMAC("s3cret", fmt.Sprintf("a/b.jpg|%d", wantExpires))
	if signed.Token != want {
		t.Errorf("Token = %s, want %s", signed.Token, want)
	}
}

func TestIssuer_CanonicalPayloads(t *testing.T) {
	i := newTestIssuer("s3cret")
	expires := int64(1_700_000_000 + 3600)

	tests := []struct {
		name    string
		signed  SignedURL
		payload string
	}{
		{"file", i.SignFile("a/b.jpg"), "a/b.jpg|%d"},
		{"list", i.SignList("HOLIDAY"), "list|HOLIDAY|%d"},
		{"delete", i.SignDelete("a/b.jpg"), "delete|a/b.jpg|%d"},
		{"move", i.SignMove("a/b.jpg", "ARCHIVE"), "move|a/b.jpg|ARCHIVE|%d"},
		{"rename", i.SignRename("a/b.jpg", "c.jpg"), "rename|a/b.jpg|c.jpg|%d"},
		{"mkdir", i.SignMkdir("HOLIDAY", "2024"), "mkdir|HOLIDAY|2024|%d"},
		{"upload", i.SignUpload("HOLIDAY"), "upload|HOLIDAY|%d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := hexHMAC("s3cret", fmt.Sprintf(tt.payload, expires))
			if tt.signed.Token != want {
				t.Errorf("Token = %s, want %s", tt.signed.Token, want)
			}
		})
	}
}

func TestIssuer_TokensDifferAcrossOperations(t *testing.T) {
	i := newTestIssuer("s3cret")

	// Same arguments, different operations: tokens must not collide.
	list := i.SignList("HOLIDAY")
	upload := i.SignUpload("HOLIDAY")
	if list.Token == upload.Token {
		t.Error("list and upload tokens collide for the same folder")
	}

	file := i.SignFile("a/b.jpg")
	del := i.SignDelete("a/b.jpg")
	if file.Token == del.Token {
		t.Error("file and delete tokens collide for the same path")
	}
}

func TestIssuer_URL(t *testing.T) {
	i := newTestIssuer("s3cret")
	signed := i.SignMove("a/b.jpg", "ARCHIVE")

	u, err := url.Parse(signed.URL)
	if err != nil {
		t.Fatalf("URL does not parse: %v", err)
	}
	if !strings.HasPrefix(signed.URL, "https://proxy.example/gallery?") {
		t.Errorf("URL = %s, want proxy endpoint prefix", signed.URL)
	}

	q := u.Query()
	if q.Get("token") != signed.Token {
		t.Errorf("token param = %s, want %s", q.Get("token"), signed.Token)
	}
	if q.Get("expires") != strconv.FormatInt(signed.Expires, 10) {
		t.Errorf("expires param = %s", q.Get("expires"))
	}
	if q.Get("op") != "move" {
		t.Errorf("op param = %s, want move", q.Get("op"))
	}
	if q.Get("sourcePath") != "a/b.jpg" || q.Get("targetFolder") != "ARCHIVE" {
		t.Errorf("operation fields = %s / %s", q.Get("sourcePath"), q.Get("targetFolder"))
	}
	if strings.Contains(signed.URL, "s3cret") {
		t.Error("URL leaks the signing secret")
	}
}

func TestIssuer_FileURLOmitsOpParam(t *testing.T) {
	i := newTestIssuer("s3cret")
	signed := i.SignFile("a/b.jpg")

	u, err := url.Parse(signed.URL)
	if err != nil {
		t.Fatalf("URL does not parse: %v", err)
	}
	q := u.Query()
	if q.Has("op") {
		t.Errorf("file URL carries op param: %s", signed.URL)
	}
	if q.Get("file") != "a/b.jpg" {
		t.Errorf("file param = %s", q.Get("file"))
	}
}

func TestIssuer_MissingSecretStillIssues(t *testing.T) {
	i := newTestIssuer("")

	for n := 0; n < 3; n++ {
		signed := i.SignFile("a/b.jpg")
		if signed.Token == "" {
			t.Fatal("no token issued with empty secret")
		}
		if signed.Expires == 0 {
			t.Fatal("no expiry set with empty secret")
		}
	}
}

func TestIssuer_Sign(t *testing.T) {
	i := newTestIssuer("s3cret")

	signed, err := i.Sign(OpRename, []string{"a/b.jpg", "c.jpg"})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if signed.Token != i.SignRename("a/b.jpg", "c.jpg").Token {
		t.Error("Sign(rename) disagrees with SignRename")
	}

	if _, err := i.Sign(OpRename, []string{"a/b.jpg"}); err == nil {
		t.Error("Sign() accepted wrong field count")
	}
	if _, err := i.Sign(Op("drop"), []string{"x"}); err == nil {
		t.Error("Sign() accepted unknown operation")
	}
}

// =============================================================================
// Verification Tests
// =============================================================================

func TestIssuer_Verify(t *testing.T) {
	i := newTestIssuer("s3cret")
	signed := i.SignList("HOLIDAY")

	if err := i.Verify(OpList, []string{"HOLIDAY"}, signed.Token, signed.Expires); err != nil {
		t.Errorf("Verify() of fresh token: %v", err)
	}

	// Tampered field.
	if err := i.Verify(OpList, []string{"ARCHIVE"}, signed.Token, signed.Expires); err == nil {
		t.Error("Verify() accepted tampered folder")
	}
	// Tampered expiry.
	if err := i.Verify(OpList, []string{"HOLIDAY"}, signed.Token, signed.Expires+60); err == nil {
		t.Error("Verify() accepted tampered expiry")
	}
	// Cross-operation replay.
	if err := i.Verify(OpUpload, []string{"HOLIDAY"}, signed.Token, signed.Expires); err == nil {
		t.Error("Verify() accepted token for a different operation")
	}
	// Wrong secret.
	other := newTestIssuer("different")
	if err := other.Verify(OpList, []string{"HOLIDAY"}, signed.Token, signed.Expires); err == nil {
		t.Error("Verify() accepted token signed with another secret")
	}
}

func TestIssuer_VerifyExpired(t *testing.T) {
	i := newTestIssuer("s3cret")
	signed := i.SignList("HOLIDAY")

	i.now = func() time.Time { return time.Unix(signed.Expires+1, 0) }
	if err := i.Verify(OpList, []string{"HOLIDAY"}, signed.Token, signed.Expires); err == nil {
		t.Error("Verify() accepted expired token")
	}
}
