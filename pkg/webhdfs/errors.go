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
	"github.com/pkg/errors"
)

var (
	// ErrProtocolViolation is returned when the remote service answers in a shape the
	// client does not expect: a missing redirect, or a token with no parsable expiry.
	ErrProtocolViolation = errors.New("webhdfs protocol violation")
)

// IsProtocolViolation returns true if the error (or its cause) is ErrProtocolViolation
func IsProtocolViolation(err error) bool {
	return err != nil && errors.Cause(err) == ErrProtocolViolation
}

func protocolViolation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocolViolation, format, args...)
}
