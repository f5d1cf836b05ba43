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
	"fmt"
	"time"
)

type (
	// Message is an application record delivered to an output. Besides the three
	// well-known fields it could carry any number of custom fields.
	Message struct {
		Timestamp time.Time
		Source    string
		Msg       string
		Fields    map[string]interface{}
	}
)

const (
	FieldTimestamp = "timestamp"
	FieldSource    = "source"
	FieldMessage   = "message"

	// TimestampFormat is how the timestamp field is rendered
	TimestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Field returns the value of the field by its name. The well-known names are
// resolved first, then custom Fields are checked.
func (m *Message) Field(name string) (interface{}, bool) {
	switch name {
	case FieldTimestamp:
		return m.Timestamp, true
	case FieldSource:
		return m.Source, true
	case FieldMessage:
		return m.Msg, true
	}
	v, ok := m.Fields[name]
	return v, ok
}

// SetField sets the custom field value
func (m *Message) SetField(name string, v interface{}) {
	if m.Fields == nil {
		m.Fields = make(map[string]interface{})
	}
	m.Fields[name] = v
}

// FieldStr returns the field value as string
func (m *Message) FieldStr(name string, loc *time.Location) (string, bool) {
	v, ok := m.Field(name)
	if !ok {
		return "", false
	}
	switch tv := v.(type) {
	case string:
		return tv, true
	case time.Time:
		if loc != nil {
			tv = tv.In(loc)
		}
		return tv.Format(TimestampFormat), true
	case fmt.Stringer:
		return tv.String(), true
	case nil:
		return "", true
	}
	return fmt.Sprint(v), true
}

func (m *Message) String() string {
	return fmt.Sprintf("{ts=%s, source=%s, msg=%q, fields=%d}", m.Timestamp.Format(TimestampFormat), m.Source, m.Msg, len(m.Fields))
}
