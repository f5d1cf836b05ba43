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

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testMessage() *Message {
	return &Message{
		Timestamp: time.Date(2019, time.March, 7, 14, 5, 9, 42000000, time.UTC),
		Source:    "web-01",
		Msg:       "GET /index.html 200",
		Fields:    map[string]interface{}{"app": "nginx", "code": 200, "pct": "%d"},
	}
}

func testFormat(t *testing.T, path bool, fstr, exp string) {
	var (
		fp  *FormatParser
		err error
	)
	if path {
		fp, err = NewPathFormatParser(fstr)
	} else {
		fp, err = NewFormatParser(fstr)
	}
	if err != nil {
		t.Fatal("unexpected parsing err=", err, " for ", fstr)
	}
	if act := fp.FormatStr(testMessage()); act != exp {
		t.Fatalf("format %q: expected %q, but got %q", fstr, exp, act)
	}
}

func TestMessageFormat(t *testing.T) {
	testFormat(t, false, "${timestamp} | ${source} | ${message}", "2019-03-07T14:05:09.042Z | web-01 | GET /index.html 200")
	testFormat(t, false, "AAA", "AAA")
	testFormat(t, false, "", "")
	testFormat(t, false, "${app}:${code}", "nginx:200")
	testFormat(t, false, "${unknown} ${app}", "${unknown} nginx")
	testFormat(t, false, "$${app} ${app}", "${app} nginx")
	testFormat(t, false, "50% ${app", "50% ${app")
	testFormat(t, false, "$$ and $ ${}", "$$ and $ ${}")
}

func TestPathFormat(t *testing.T) {
	testFormat(t, true, "/logs/${source}/%Y_%m_%d_%H_%M.log", "/logs/web-01/2019_03_07_14_05.log")
	testFormat(t, true, "/logs/%F/%T", "/logs/2019-03-07/14:05:09")
	testFormat(t, true, "%y%C %e %I %l %k %S.%L %p", "1920 7 02 2 14 09.042 pm")
	testFormat(t, true, "%B %b %h %A %a %j", "March Mar Mar Thursday Thu 066")
	testFormat(t, true, "%s %Q %Z %z", "1551967509 1551967509042 UTC +0000")
	testFormat(t, true, "%D %R %r", "03/07/19 14:05 02:05:09 PM")
	testFormat(t, true, "100%%", "100%")
	// substituted values are not interpreted as conversions
	testFormat(t, true, "/x/${pct}/%Y", "/x/%d/2019")
}

func TestPathFormatLocation(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	fp, err := NewPathFormatParser("%H-%z ${timestamp}")
	assert.Nil(t, err)
	fp.WithLocation(loc)
	assert.Equal(t, "17-+0300 2019-03-07T17:05:09.042+03:00", fp.FormatStr(testMessage()))
}

func TestPathFormatErr(t *testing.T) {
	for _, fstr := range []string{"%", "/logs/%Q%", "%q", "/a/%1$tY"} {
		if _, err := NewPathFormatParser(fstr); err == nil {
			t.Fatal("expecting an error for ", fstr)
		}
	}
	// the message templates do not treat % specially
	fp, err := NewFormatParser("%q")
	assert.Nil(t, err)
	assert.False(t, fp.HasFields())
}

func TestNilMessage(t *testing.T) {
	fp, err := NewFormatParser("[${message}]")
	assert.Nil(t, err)
	assert.True(t, fp.HasFields())
	assert.Equal(t, "[]", fp.FormatStr(nil))
}
