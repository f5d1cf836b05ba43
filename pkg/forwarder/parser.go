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

package forwarder

import (
	"strings"
	"time"

	"github.com/kr/logfmt"
	"github.com/logrange/lrhdfs/pkg/model"
)

type (
	// logfmtRec collects the key=value pairs of a logfmt line, bare keys are
	// skipped
	logfmtRec map[string]string
)

// ParseLine turns a logfmt line into a Message:
//	msg or message		- the message body
//	ts, time or timestamp	- the RFC3339 timestamp
//	source or host		- the message source
// all other pairs become the message fields. A line which has no key=value
// pairs is the message body as is. The timestamp defaults to now, the source
// to defSource.
func ParseLine(line, defSource string, now time.Time) *model.Message {
	line = strings.TrimRight(line, "\r\n")
	m := &model.Message{Timestamp: now, Source: defSource}

	if strings.IndexByte(line, '=') < 0 {
		m.Msg = line
		return m
	}
	rec := make(logfmtRec)
	if err := logfmt.Unmarshal([]byte(line), rec); err != nil || len(rec) == 0 {
		m.Msg = line
		return m
	}

	msgSet := false
	for k, v := range rec {
		switch k {
		case "msg", model.FieldMessage:
			m.Msg = v
			msgSet = true
		case "ts", "time", model.FieldTimestamp:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = t
				continue
			}
			m.SetField(k, v)
		case model.FieldSource, "host":
			if v != "" {
				m.Source = v
			}
		default:
			m.SetField(k, v)
		}
	}
	if !msgSet {
		m.Msg = line
	}
	return m
}

func (r logfmtRec) HandleLogfmt(key, val []byte) error {
	if val != nil {
		r[string(key)] = string(val)
	}
	return nil
}
