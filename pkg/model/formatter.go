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
	"strconv"
	"strings"
	"time"
)

type (
	formatField struct {
		typ   int
		value string
	}

	// FormatParser struct provides Message formatting functionality. The
	// template is parsed once, so values substituted into the result are never
	// interpreted as placeholders.
	FormatParser struct {
		fields []formatField
		loc    *time.Location
	}
)

const (
	frmtFldConst = iota
	frmtFldVar
	frmtFldDate
)

// the supported date conversions, see FormatParser.formatDate()
const dateConversions = "YyCmdeHIklMSLNpBbhAajZzsQDFTRrc"

// NewFormatParser returns FormatParser for the format string provided or returns an error if any.
//
// Message fields are placed with ${name}:
// ${message}	- the message body
// ${source}	- the message source
// ${timestamp}	- the message timestamp in TimestampFormat
// ${<field>}	- a custom message field
//
// Placeholders of unknown fields and an unterminated "${" are kept as is, "$${"
// is an escape for the literal "${".
//
// Example:
// 	"${timestamp} | ${source} | ${message}"
func NewFormatParser(fstr string) (*FormatParser, error) {
	return newFormatParser(fstr, false)
}

// NewPathFormatParser returns FormatParser which, in addition to the ${name}
// fields, understands the date conversions of the message timestamp:
// %Y (2019), %y (19), %C (20), %m (01-12), %d (01-31), %e (1-31), %H (00-23),
// %I (01-12), %k (0-23), %l (1-12), %M (00-59), %S (00-60), %L (millis), %N (nanos),
// %p (am/pm), %B (January), %b or %h (Jan), %A (Monday), %a (Mon), %j (001-366),
// %Z (UTC), %z (+0000), %s (epoch seconds), %Q (epoch millis), %D (%m/%d/%y),
// %F (%Y-%m-%d), %T (%H:%M:%S), %R (%H:%M), %r (%I:%M:%S %p), %c (full date),
// %% (%) and %n (new line).
//
// Example:
//	"/logs/${source}/%Y_%m_%d_%H_%M.log"
func NewPathFormatParser(fstr string) (*FormatParser, error) {
	return newFormatParser(fstr, true)
}

func newFormatParser(fstr string, dates bool) (*FormatParser, error) {
	fields := make([]formatField, 0, 10)
	var cb strings.Builder
	flushConst := func() {
		if cb.Len() > 0 {
			fields = append(fields, formatField{frmtFldConst, cb.String()})
			cb.Reset()
		}
	}

	for i := 0; i < len(fstr); i++ {
		c := fstr[i]
		switch {
		case c == '$' && strings.HasPrefix(fstr[i+1:], "${"):
			cb.WriteString("${")
			i += 2
		case c == '$' && strings.HasPrefix(fstr[i+1:], "{"):
			end := strings.IndexByte(fstr[i+2:], '}')
			if end < 0 {
				cb.WriteString(fstr[i:])
				i = len(fstr)
				continue
			}
			flushConst()
			fields = append(fields, formatField{frmtFldVar, fstr[i+2 : i+2+end]})
			i += 2 + end
		case c == '%' && dates:
			if i+1 >= len(fstr) {
				return nil, fmt.Errorf("unexpected end of string, date conversion is expected after '%%'")
			}
			i++
			conv := fstr[i]
			switch {
			case conv == '%':
				cb.WriteByte('%')
			case conv == 'n':
				cb.WriteByte('\n')
			case strings.IndexByte(dateConversions, conv) >= 0:
				flushConst()
				fields = append(fields, formatField{frmtFldDate, string(conv)})
			default:
				return nil, fmt.Errorf("unknown date conversion %%%c at %d. Expected one of %%[%s%%n]", conv, i-1, dateConversions)
			}
		default:
			cb.WriteByte(c)
		}
	}
	flushConst()

	return &FormatParser{fields: fields, loc: time.UTC}, nil
}

// WithLocation sets the time zone timestamps are rendered in, UTC by default
func (fp *FormatParser) WithLocation(loc *time.Location) *FormatParser {
	if loc != nil {
		fp.loc = loc
	}
	return fp
}

// HasFields returns whether the template refers to any message fields or dates
func (fp *FormatParser) HasFields() bool {
	for _, ff := range fp.fields {
		if ff.typ != frmtFldConst {
			return true
		}
	}
	return false
}

// FormatStr formats provided message
func (fp *FormatParser) FormatStr(m *Message) string {
	var msg Message
	if m != nil {
		msg = *m
	}
	var buf strings.Builder
	for _, ff := range fp.fields {
		switch ff.typ {
		case frmtFldConst:
			buf.WriteString(ff.value)
		case frmtFldVar:
			if v, ok := msg.FieldStr(ff.value, fp.loc); ok {
				buf.WriteString(v)
			} else {
				buf.WriteString("${")
				buf.WriteString(ff.value)
				buf.WriteString("}")
			}
		case frmtFldDate:
			fp.formatDate(&buf, ff.value[0], msg.Timestamp.In(fp.loc))
		}
	}
	return buf.String()
}

func (fp *FormatParser) formatDate(buf *strings.Builder, conv byte, t time.Time) {
	switch conv {
	case 'Y':
		buf.WriteString(fmt.Sprintf("%04d", t.Year()))
	case 'y':
		buf.WriteString(fmt.Sprintf("%02d", t.Year()%100))
	case 'C':
		buf.WriteString(fmt.Sprintf("%02d", t.Year()/100))
	case 'm':
		buf.WriteString(fmt.Sprintf("%02d", int(t.Month())))
	case 'd':
		buf.WriteString(fmt.Sprintf("%02d", t.Day()))
	case 'e':
		buf.WriteString(strconv.Itoa(t.Day()))
	case 'H':
		buf.WriteString(fmt.Sprintf("%02d", t.Hour()))
	case 'I':
		buf.WriteString(fmt.Sprintf("%02d", hour12(t)))
	case 'k':
		buf.WriteString(strconv.Itoa(t.Hour()))
	case 'l':
		buf.WriteString(strconv.Itoa(hour12(t)))
	case 'M':
		buf.WriteString(fmt.Sprintf("%02d", t.Minute()))
	case 'S':
		buf.WriteString(fmt.Sprintf("%02d", t.Second()))
	case 'L':
		buf.WriteString(fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)))
	case 'N':
		buf.WriteString(fmt.Sprintf("%09d", t.Nanosecond()))
	case 'p':
		buf.WriteString(strings.ToLower(t.Format("PM")))
	case 'B':
		buf.WriteString(t.Format("January"))
	case 'b', 'h':
		buf.WriteString(t.Format("Jan"))
	case 'A':
		buf.WriteString(t.Format("Monday"))
	case 'a':
		buf.WriteString(t.Format("Mon"))
	case 'j':
		buf.WriteString(fmt.Sprintf("%03d", t.YearDay()))
	case 'Z':
		buf.WriteString(t.Format("MST"))
	case 'z':
		buf.WriteString(t.Format("-0700"))
	case 's':
		buf.WriteString(strconv.FormatInt(t.Unix(), 10))
	case 'Q':
		buf.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	case 'D':
		buf.WriteString(t.Format("01/02/06"))
	case 'F':
		buf.WriteString(t.Format("2006-01-02"))
	case 'T':
		buf.WriteString(t.Format("15:04:05"))
	case 'R':
		buf.WriteString(t.Format("15:04"))
	case 'r':
		buf.WriteString(t.Format("03:04:05 PM"))
	case 'c':
		buf.WriteString(t.Format("Mon Jan 02 15:04:05 MST 2006"))
	}
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

func (fp *FormatParser) String() string {
	var sb strings.Builder
	for _, ff := range fp.fields {
		switch ff.typ {
		case frmtFldConst:
			sb.WriteString(ff.value)
		case frmtFldVar:
			sb.WriteString("${" + ff.value + "}")
		case frmtFldDate:
			sb.WriteString("%" + ff.value)
		}
	}
	return sb.String()
}
