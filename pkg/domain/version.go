package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// VersionToken is an opaque snapshot marker of the form
// "<epoch-millis>_<random-suffix>". Tokens compare by equality only; the
// embedded time is used for divergence detection.
type VersionToken string

// MintVersion returns a fresh token stamped with t.
func MintVersion(t time.Time) VersionToken {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return VersionToken(strconv.FormatInt(t.UnixMilli(), 10) + "_" + hex.EncodeToString(b[:]))
}

// CreatedAt decodes the time component. Empty or malformed tokens decode to
// the zero time.
func (v VersionToken) CreatedAt() time.Time {
	ms, ok := v.millis()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// IsZero reports whether no token has been minted.
func (v VersionToken) IsZero() bool { return v == "" }

// Valid reports whether the token carries a decodable time component.
func (v VersionToken) Valid() bool {
	_, ok := v.millis()
	return ok
}

func (v VersionToken) millis() (int64, bool) {
	head, _, found := strings.Cut(string(v), "_")
	if !found || head == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(head, 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return ms, true
}

func (v VersionToken) String() string { return string(v) }
