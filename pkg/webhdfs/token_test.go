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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseToken(t *testing.T) {
	tok, err := ParseToken("\"u=alice&p=alice@EXAMPLE.COM&t=kerberos&e=1520000000000&s=8bSaX2w+Y/XPHe8dMsGWZfg=\"")
	assert.Nil(t, err)
	assert.True(t, tok.IsSet())
	assert.Equal(t, "alice", tok.User())
	assert.Equal(t, "alice@EXAMPLE.COM", tok.Principal())
	assert.Equal(t, "kerberos", tok.Type())
	assert.Equal(t, int64(1520000000000), tok.ExpiresMillis())
	assert.Equal(t, "u=alice&p=alice@EXAMPLE.COM&t=kerberos&e=1520000000000&s=8bSaX2w+Y/XPHe8dMsGWZfg=", tok.Value())
	assert.NotContains(t, tok.String(), "8bSaX2w")
}

func TestParseTokenMalformed(t *testing.T) {
	for _, blob := range []string{
		"",
		"u=alice&p=alice",
		"u=alice&p=alice&t=simple",
		"u=alice&p=alice&t=simple&e=tomorrow&s=abc",
		"u=alice&p=alice&t=simple&x=1&s=abc",
	} {
		tok, err := ParseToken(blob)
		assert.True(t, IsProtocolViolation(err), "blob=%q err=%v", blob, err)
		assert.False(t, tok.IsSet())
	}
}

func TestTokenIsExpired(t *testing.T) {
	tok, err := ParseToken("u=a&p=a&t=simple&e=1000&s=x")
	assert.Nil(t, err)

	assert.False(t, tok.IsExpired(time.Unix(0, 999*int64(time.Millisecond))))
	assert.False(t, tok.IsExpired(time.Unix(1, 0)))
	assert.True(t, tok.IsExpired(time.Unix(0, 1001*int64(time.Millisecond))))

	tok, err = ParseToken("u=a&p=a&t=simple&e=-1&s=x")
	assert.Nil(t, err)
	assert.False(t, tok.IsExpired(time.Now().Add(100*365*24*time.Hour)))
	assert.True(t, tok.Expires().IsZero())

	assert.True(t, Token{}.IsExpired(time.Unix(0, 0)))
}
