// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhdfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type (
	// Token is the session credential the namenode hands out in the hadoop.auth
	// cookie. It is immutable: the client replaces the whole value on refresh.
	//
	// The zero value is an unset token.
	Token struct {
		blob      string
		user      string
		principal string
		typ       string
		expires   int64
	}
)

const (
	// AuthCookieName is the cookie the service uses to carry the token
	AuthCookieName = "hadoop.auth"

	// the AuthToken's expiry value for tokens that never expire
	tokenNeverExpires = -1

	tokenMinFields = 4
)

// ParseToken parses the cookie value into Token. The blob has the form
// u=<user>&p=<principal>&t=<type>&e=<expiry millis>&s=<signature> and may be
// wrapped into double quotes. Anything without the four leading fields or with
// a non-integer expiry results in ErrProtocolViolation.
func ParseToken(blob string) (Token, error) {
	s := strings.Trim(blob, "\"")
	parts := strings.Split(s, "&")
	if len(parts) < tokenMinFields {
		return Token{}, protocolViolation("malformed auth token: %d fields, at least %d expected", len(parts), tokenMinFields)
	}

	tok := Token{blob: s}
	hasExp := false
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "u":
			tok.user = kv[1]
		case "p":
			tok.principal = kv[1]
		case "t":
			tok.typ = kv[1]
		case "e":
			e, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return Token{}, protocolViolation("malformed auth token: expiry %q is not an integer", kv[1])
			}
			tok.expires = e
			hasExp = true
		}
	}

	if !hasExp {
		return Token{}, protocolViolation("malformed auth token: no expiry field")
	}
	return tok, nil
}

// IsSet returns whether the token has been obtained
func (t Token) IsSet() bool {
	return t.blob != ""
}

// ExpiresMillis returns the expiry as epoch milliseconds, -1 means never
func (t Token) ExpiresMillis() int64 {
	return t.expires
}

// Expires returns the expiry time. Zero time is returned for tokens that never expire.
func (t Token) Expires() time.Time {
	if t.expires == tokenNeverExpires {
		return time.Time{}
	}
	return time.Unix(0, t.expires*int64(time.Millisecond))
}

// IsExpired returns true if now is strictly after the token expiry. An unset
// token is always expired.
func (t Token) IsExpired(now time.Time) bool {
	if !t.IsSet() {
		return true
	}
	if t.expires == tokenNeverExpires {
		return false
	}
	return now.UnixMilli() > t.expires
}

// User returns the authenticated user name
func (t Token) User() string {
	return t.user
}

// Principal returns the authenticated principal
func (t Token) Principal() string {
	return t.principal
}

// Type returns the authentication type (simple, kerberos etc.)
func (t Token) Type() string {
	return t.typ
}

// Value returns the raw cookie value
func (t Token) Value() string {
	return t.blob
}

// String never returns the signature
func (t Token) String() string {
	if !t.IsSet() {
		return "{unset}"
	}
	return fmt.Sprintf("{user=%s, type=%s, expires=%d}", t.user, t.typ, t.expires)
}
