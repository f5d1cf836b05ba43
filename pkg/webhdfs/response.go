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
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type (
	// Response is the normalized result of one HTTP exchange. Non-2xx answers are
	// not errors on this level, the caller inspects StatusCode.
	Response struct {
		StatusCode  int
		StatusText  string
		ContentType string
		Body        string
	}
)

// newResponse reads the whole body and closes it
func newResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read response body, status=%d", resp.StatusCode)
	}
	r := newResponseHead(resp)
	r.Body = string(body)
	return r, nil
}

func newResponseHead(resp *http.Response) *Response {
	return &Response{
		StatusCode:  resp.StatusCode,
		StatusText:  strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
		ContentType: resp.Header.Get("Content-Type"),
	}
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode == http.StatusTemporaryRedirect
}

// IsNotFound returns true when the target path does not exist: either 404 or a
// FileNotFoundException in the body.
func (r *Response) IsNotFound() bool {
	if r.StatusCode == http.StatusNotFound {
		return true
	}
	if r.IsSuccess() {
		return false
	}
	re, ok := r.RemoteException()
	return ok && re.Exception == exceptionFileNotFound
}

// Err returns nil for 2xx answers and *RemoteError otherwise
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	re, _ := r.RemoteException()
	return &RemoteError{StatusCode: r.StatusCode, Exception: re}
}

// RemoteException parses the error body, if any
func (r *Response) RemoteException() (RemoteException, bool) {
	var env remoteExceptionEnvelope
	if r.Body == "" || json.Unmarshal([]byte(r.Body), &env) != nil {
		return RemoteException{}, false
	}
	return env.RemoteException, env.RemoteException.Exception != ""
}

// DecodeJSON unmarshals the body of a successful response into v
func (r *Response) DecodeJSON(v interface{}) error {
	if err := r.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(r.Body), v); err != nil {
		return errors.Wrapf(err, "could not decode response body, contentType=%s", r.ContentType)
	}
	return nil
}

func (r *Response) FileStatus() (FileStatus, error) {
	var env fileStatusEnvelope
	err := r.DecodeJSON(&env)
	return env.FileStatus, err
}

func (r *Response) FileStatuses() ([]FileStatus, error) {
	var env fileStatusesEnvelope
	err := r.DecodeJSON(&env)
	return env.FileStatuses.FileStatus, err
}

func (r *Response) ContentSummary() (ContentSummary, error) {
	var env contentSummaryEnvelope
	err := r.DecodeJSON(&env)
	return env.ContentSummary, err
}

func (r *Response) FileChecksum() (FileChecksum, error) {
	var env fileChecksumEnvelope
	err := r.DecodeJSON(&env)
	return env.FileChecksum, err
}

// Boolean decodes {"boolean": true|false} answers of MKDIRS, RENAME, DELETE and SETREPLICATION
func (r *Response) Boolean() (bool, error) {
	var env booleanEnvelope
	err := r.DecodeJSON(&env)
	return env.Boolean, err
}

// Path decodes the GETHOMEDIRECTORY answer
func (r *Response) Path() (string, error) {
	var env pathEnvelope
	err := r.DecodeJSON(&env)
	return env.Path, err
}

func (r *Response) String() string {
	return fmt.Sprintf("{status=%d %s, contentType=%s, body=%d bytes}", r.StatusCode, r.StatusText, r.ContentType, len(r.Body))
}
