// Package token mints HMAC-SHA256 signed URLs for a session-less downstream
// proxy. Each operation signs a canonical payload binding the operation, its
// arguments, and an expiry, so one intercepted URL grants nothing else.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/metroboards/galleryscan/internal/errors"
	"github.com/metroboards/galleryscan/internal/logger"
)

// DefaultTTL is the signed-URL lifetime for read operations.
const DefaultTTL = 2 * time.Hour

// Op identifies a proxy operation.
type Op string

const (
	OpFile   Op = "file"
	OpList   Op = "list"
	OpDelete Op = "delete"
	OpMove   Op = "move"
	OpRename Op = "rename"
	OpMkdir  Op = "mkdir"
	OpUpload Op = "upload"
)

// SignedURL is the transient result of signing one operation. It is valid
// until Expires and never persisted.
type SignedURL struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
	URL     string `json:"url"`
}

// Config holds issuer configuration.
type Config struct {
	// Secret is the shared HMAC key. Empty while Protected is set triggers
	// a one-time warning; tokens are still issued.
	Secret string
	// Endpoint is the downstream proxy URL signed URLs point at.
	Endpoint string
	// TTL is the signed-URL lifetime. Zero means DefaultTTL.
	TTL time.Duration
	// Protected marks whether the downstream proxy enforces signatures.
	Protected bool
}

// Issuer signs operation payloads and builds the corresponding proxy URLs.
type Issuer struct {
	secret    []byte
	endpoint  string
	ttl       time.Duration
	protected bool
	log       *logger.Logger

	warnOnce sync.Once
	now      func() time.Time
}

// New creates an Issuer.
func New(cfg Config, log *logger.Logger) *Issuer {
	if log == nil {
		log = logger.Global()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret:    []byte(cfg.Secret),
		endpoint:  cfg.Endpoint,
		ttl:       ttl,
		protected: cfg.Protected,
		log:       log.WithComponent("token"),
		now:       time.Now,
	}
}

// SignFile signs a single-file fetch.
func (i *Issuer) SignFile(filePath string) SignedURL {
	return i.sign(OpFile, []string{filePath}, url.Values{"file": {filePath}})
}

// SignList signs a folder listing request.
func (i *Issuer) SignList(folder string) SignedURL {
	return i.sign(OpList, []string{folder}, url.Values{"folder": {folder}})
}

// SignDelete signs a file deletion.
func (i *Issuer) SignDelete(filePath string) SignedURL {
	return i.sign(OpDelete, []string{filePath}, url.Values{"file": {filePath}})
}

// SignMove signs moving a file into another folder.
func (i *Issuer) SignMove(sourcePath, targetFolder string) SignedURL {
	return i.sign(OpMove, []string{sourcePath, targetFolder}, url.Values{
		"sourcePath":   {sourcePath},
		"targetFolder": {targetFolder},
	})
}

// SignRename signs renaming a file.
func (i *Issuer) SignRename(oldPath, newName string) SignedURL {
	return i.sign(OpRename, []string{oldPath, newName}, url.Values{
		"oldPath": {oldPath},
		"newName": {newName},
	})
}

// SignMkdir signs creating a folder.
func (i *Issuer) SignMkdir(parentFolder, folderName string) SignedURL {
	return i.sign(OpMkdir, []string{parentFolder, folderName}, url.Values{
		"parentFolder": {parentFolder},
		"folderName":   {folderName},
	})
}

// SignUpload signs an upload into a folder.
func (i *Issuer) SignUpload(folder string) SignedURL {
	return i.sign(OpUpload, []string{folder}, url.Values{"folder": {folder}})
}

// Sign signs an arbitrary operation with positional fields in canonical
// order. The CLI uses it; typed callers prefer the Sign* helpers.
func (i *Issuer) Sign(op Op, fields []string) (SignedURL, error) {
	switch op {
	case OpFile, OpList, OpDelete, OpUpload:
		if len(fields) != 1 {
			return SignedURL{}, errors.NewTokenError(fmt.Sprintf("%s expects 1 field, got %d", op, len(fields)))
		}
	case OpMove, OpRename, OpMkdir:
		if len(fields) != 2 {
			return SignedURL{}, errors.NewTokenError(fmt.Sprintf("%s expects 2 fields, got %d", op, len(fields)))
		}
	default:
		return SignedURL{}, errors.NewTokenError("unknown operation: " + string(op))
	}

	var params url.Values
	switch op {
	case OpFile, OpDelete:
		params = url.Values{"file": {fields[0]}}
	case OpList, OpUpload:
		params = url.Values{"folder": {fields[0]}}
	case OpMove:
		params = url.Values{"sourcePath": {fields[0]}, "targetFolder": {fields[1]}}
	case OpRename:
		params = url.Values{"oldPath": {fields[0]}, "newName": {fields[1]}}
	case OpMkdir:
		params = url.Values{"parentFolder": {fields[0]}, "folderName": {fields[1]}}
	}
	return i.sign(op, fields, params), nil
}

func (i *Issuer) sign(op Op, fields []string, params url.Values) SignedURL {
	if len(i.secret) == 0 && i.protected {
		i.warnOnce.Do(func() {
			i.log.Warn("signing secret not configured; issued tokens will not verify")
		})
	}

	expires := i.now().Add(i.ttl).Unix()
	tok := i.digest(payload(op, fields, expires))

	params.Set("token", tok)
	params.Set("expires", strconv.FormatInt(expires, 10))
	if op != OpFile {
		params.Set("op", string(op))
	}

	return SignedURL{
		Token:   tok,
		Expires: expires,
		URL:     i.endpoint + "?" + params.Encode(),
	}
}

// Verify recomputes the signature for an operation and rejects mismatched
// or expired tokens. It is the proxy-side counterpart of the Sign helpers.
func (i *Issuer) Verify(op Op, fields []string, tok string, expires int64) error {
	if i.now().Unix() > expires {
		return errors.NewTokenError("token expired")
	}
	want := i.digest(payload(op, fields, expires))
	if !hmac.Equal([]byte(want), []byte(tok)) {
		return errors.NewTokenError("token signature mismatch")
	}
	return nil
}

func (i *Issuer) digest(payload string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// payload builds the canonical string bound by the signature. The file
// operation has no tag; every other operation is tagged so payloads
// never collide across operations.
func payload(op Op, fields []string, expires int64) string {
	parts := make([]string, 0, len(fields)+2)
	if op != OpFile {
		parts = append(parts, string(op))
	}
	parts = append(parts, fields...)
	parts = append(parts, strconv.FormatInt(expires, 10))
	return strings.Join(parts, "|")
}
