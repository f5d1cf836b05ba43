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

// Package webhdfstest provides an in-memory namenode/datanode pair for tests
package webhdfstest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type (
	// Call is one request either node received
	Call struct {
		Node             string
		Method           string
		Op               string
		Path             string
		Query            url.Values
		Cookie           string
		Header           http.Header
		ContentType      string
		ContentLength    int64
		TransferEncoding []string
		Body             []byte
	}

	// Server is a fake HDFS with WebHDFS namenode and datanode endpoints
	Server struct {
		NameNode *httptest.Server
		DataNode *httptest.Server

		// TokenTTL is the lifetime of issued tokens, -1 means tokens never expire
		TokenTTL time.Duration
		// TokenValue if not empty is issued instead of a generated token
		TokenValue string
		// NoToken makes the namenode not issue the cookie at all
		NoToken bool
		// AuthStatus if not 0 is returned for GETHOMEDIRECTORY
		AuthStatus int
		// FailOps maps an op to the status the namenode answers with
		FailOps map[string]int
		// NoRedirect makes CREATE/APPEND answer 200 on the namenode
		NoRedirect bool
		// NoLocation makes CREATE/APPEND answer 307 without Location
		NoLocation bool
		// Delay is applied to every datanode request
		Delay time.Duration

		lock   sync.Mutex
		files  map[string][]byte
		dirs   map[string]bool
		calls  []Call
		tokens int
		nowFn  func() time.Time
	}
)

const (
	NodeName = "namenode"
	NodeData = "datanode"

	prefix = "/webhdfs/v1"
)

// NewServer starts both nodes
func NewServer() *Server {
	s := &Server{
		TokenTTL: time.Hour,
		FailOps:  make(map[string]int),
		files:    make(map[string][]byte),
		dirs:     map[string]bool{"/": true},
		nowFn:    time.Now,
	}
	s.NameNode = httptest.NewServer(http.HandlerFunc(s.serveNameNode))
	s.DataNode = httptest.NewServer(http.HandlerFunc(s.serveDataNode))
	return s
}

// URL returns the namenode base URL
func (s *Server) URL() string {
	return s.NameNode.URL
}

func (s *Server) Close() {
	s.NameNode.Close()
	s.DataNode.Close()
}

// SetNow replaces the clock used for token expiration
func (s *Server) SetNow(fn func() time.Time) {
	s.lock.Lock()
	s.nowFn = fn
	s.lock.Unlock()
}

// PutFile stores the file content and creates its parents
func (s *Server) PutFile(p string, data []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.files[p] = append([]byte{}, data...)
	s.mkdirs(parent(p))
}

// File returns the file content
func (s *Server) File(p string) ([]byte, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	d, ok := s.files[p]
	return append([]byte{}, d...), ok
}

// Calls returns all recorded calls
func (s *Server) Calls() []Call {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Call{}, s.calls...)
}

// CallsOf returns calls of the node for the op
func (s *Server) CallsOf(node, op string) []Call {
	var res []Call
	for _, c := range s.Calls() {
		if c.Node == node && c.Op == op {
			res = append(res, c)
		}
	}
	return res
}

// TokensIssued returns how many times the namenode issued the token
func (s *Server) TokensIssued() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tokens
}

// SetFailOp makes the namenode answer the op with the status, 0 removes the failure
func (s *Server) SetFailOp(op string, status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if status == 0 {
		delete(s.FailOps, op)
		return
	}
	s.FailOps[op] = status
}

func (s *Server) ResetCalls() {
	s.lock.Lock()
	s.calls = nil
	s.lock.Unlock()
}

//===================== namenode =====================

func (s *Server) serveNameNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.record(NodeName, r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if st, ok := s.FailOps[c.Op]; ok {
		writeException(w, st, "IOException", "injected failure for "+c.Op)
		return
	}

	user := r.URL.Query().Get("user.name")
	switch c.Op {
	case "GETHOMEDIRECTORY":
		if s.AuthStatus != 0 {
			writeException(w, s.AuthStatus, "SecurityException", "authentication failed")
			return
		}
		if !s.NoToken {
			s.tokens++
			http.SetCookie(w, &http.Cookie{Name: "hadoop.auth", Value: s.newToken(user), Path: "/"})
		}
		writeJSON(w, http.StatusOK, map[string]string{"Path": "/user/" + user})
	case "OPEN":
		if _, ok := s.files[c.Path]; !ok {
			writeNotFound(w, c.Path)
			return
		}
		s.redirect(w, r, c)
	case "GETFILESTATUS":
		st, ok := s.status(c.Path, "")
		if !ok {
			writeNotFound(w, c.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"FileStatus": st})
	case "LISTSTATUS":
		if !s.dirs[c.Path] {
			if st, ok := s.status(c.Path, ""); ok {
				writeJSON(w, http.StatusOK, fileStatuses([]map[string]interface{}{st}))
				return
			}
			writeNotFound(w, c.Path)
			return
		}
		writeJSON(w, http.StatusOK, fileStatuses(s.list(c.Path)))
	case "GETCONTENTSUMMARY":
		if !s.dirs[c.Path] && s.files[c.Path] == nil {
			writeNotFound(w, c.Path)
			return
		}
		var files, dirs, length int64
		for p, d := range s.files {
			if under(p, c.Path) {
				files++
				length += int64(len(d))
			}
		}
		for p := range s.dirs {
			if under(p, c.Path) {
				dirs++
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ContentSummary": map[string]interface{}{
			"directoryCount": dirs, "fileCount": files, "length": length,
			"quota": -1, "spaceConsumed": length * 3, "spaceQuota": -1}})
	case "GETFILECHECKSUM":
		d, ok := s.files[c.Path]
		if !ok {
			writeNotFound(w, c.Path)
			return
		}
		sum := md5.Sum(d)
		writeJSON(w, http.StatusOK, map[string]interface{}{"FileChecksum": map[string]interface{}{
			"algorithm": "MD5-of-0MD5-of-512CRC32C", "bytes": hex.EncodeToString(sum[:]), "length": 28}})
	case "CREATE":
		if r.Method != http.MethodPut {
			writeException(w, http.StatusBadRequest, "IllegalArgumentException", "CREATE must be PUT")
			return
		}
		if _, ok := s.files[c.Path]; ok && c.Query.Get("overwrite") == "false" {
			writeException(w, http.StatusForbidden, "FileAlreadyExistsException", c.Path+" already exists")
			return
		}
		s.redirect(w, r, c)
	case "APPEND":
		if r.Method != http.MethodPost {
			writeException(w, http.StatusBadRequest, "IllegalArgumentException", "APPEND must be POST")
			return
		}
		if _, ok := s.files[c.Path]; !ok {
			writeNotFound(w, c.Path)
			return
		}
		s.redirect(w, r, c)
	case "MKDIRS":
		s.mkdirs(c.Path)
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": true})
	case "RENAME":
		dst := c.Query.Get("destination")
		d, ok := s.files[c.Path]
		if !ok {
			writeJSON(w, http.StatusOK, map[string]bool{"boolean": false})
			return
		}
		delete(s.files, c.Path)
		s.files[dst] = d
		s.mkdirs(parent(dst))
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": true})
	case "CREATESYMLINK", "SETPERMISSION", "SETOWNER", "SETTIMES":
		if !s.dirs[c.Path] && s.files[c.Path] == nil && c.Op != "CREATESYMLINK" {
			writeNotFound(w, c.Path)
			return
		}
		w.WriteHeader(http.StatusOK)
	case "SETREPLICATION":
		_, ok := s.files[c.Path]
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": ok})
	case "DELETE":
		deleted := false
		if _, ok := s.files[c.Path]; ok {
			delete(s.files, c.Path)
			deleted = true
		}
		if s.dirs[c.Path] {
			children := s.list(c.Path)
			if len(children) > 0 && c.Query.Get("recursive") != "true" {
				writeException(w, http.StatusForbidden, "PathIsNotEmptyDirectoryException", c.Path+" is non empty")
				return
			}
			for p := range s.files {
				if under(p, c.Path) {
					delete(s.files, p)
				}
			}
			for p := range s.dirs {
				if under(p, c.Path) {
					delete(s.dirs, p)
				}
			}
			deleted = true
		}
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": deleted})
	default:
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", "unknown op "+c.Op)
	}
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, c Call) {
	if (c.Op == "CREATE" || c.Op == "APPEND") && s.NoRedirect {
		w.WriteHeader(http.StatusOK)
		return
	}
	if (c.Op == "CREATE" || c.Op == "APPEND") && s.NoLocation {
		w.WriteHeader(http.StatusTemporaryRedirect)
		return
	}
	q := url.Values{}
	for k, v := range c.Query {
		q[k] = v
	}
	q.Set("namenoderpcaddress", "fake:8020")
	u := s.DataNode.URL + prefix + (&url.URL{Path: c.Path}).EscapedPath() + "?" + q.Encode()
	w.Header().Set("Location", u)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

func (s *Server) newToken(user string) string {
	if s.TokenValue != "" {
		return s.TokenValue
	}
	exp := int64(-1)
	if s.TokenTTL >= 0 {
		exp = s.nowFn().Add(s.TokenTTL).UnixMilli()
	}
	return fmt.Sprintf("u=%s&p=%s&t=simple&e=%d&s=c2lnbmF0dXJl%d", user, user, exp, s.tokens)
}

//===================== datanode =====================

func (s *Server) serveDataNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.record(NodeData, r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	switch c.Op {
	case "OPEN":
		d, ok := s.files[c.Path]
		if !ok {
			writeNotFound(w, c.Path)
			return
		}
		var off, ln int64 = 0, int64(len(d))
		fmt.Sscan(c.Query.Get("offset"), &off)
		fmt.Sscan(c.Query.Get("length"), &ln)
		if off > int64(len(d)) {
			off = int64(len(d))
		}
		if off+ln > int64(len(d)) {
			ln = int64(len(d)) - off
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(d[off : off+ln])
	case "CREATE":
		s.files[c.Path] = c.Body
		s.mkdirs(parent(c.Path))
		w.Header().Set("Location", "hdfs://fake:8020"+c.Path)
		w.WriteHeader(http.StatusCreated)
	case "APPEND":
		d, ok := s.files[c.Path]
		if !ok {
			writeNotFound(w, c.Path)
			return
		}
		s.files[c.Path] = append(d, c.Body...)
		w.WriteHeader(http.StatusOK)
	default:
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", "unknown op "+c.Op)
	}
}

//===================== helpers =====================

func (s *Server) record(node string, r *http.Request) (Call, bool) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return Call{}, false
	}
	body, _ := ioutil.ReadAll(r.Body)
	p := strings.TrimPrefix(r.URL.Path, prefix)
	if p == "" {
		p = "/"
	}
	c := Call{
		Node:             node,
		Method:           r.Method,
		Op:               strings.ToUpper(r.URL.Query().Get("op")),
		Path:             p,
		Query:            r.URL.Query(),
		Header:           r.Header.Clone(),
		ContentType:      r.Header.Get("Content-Type"),
		ContentLength:    r.ContentLength,
		TransferEncoding: r.TransferEncoding,
		Body:             body,
	}
	if ck, err := r.Cookie("hadoop.auth"); err == nil {
		c.Cookie = ck.Value
	}
	s.lock.Lock()
	s.calls = append(s.calls, c)
	s.lock.Unlock()
	return c, true
}

func (s *Server) mkdirs(p string) {
	for p != "/" && p != "" {
		s.dirs[p] = true
		p = parent(p)
	}
}

func (s *Server) status(p, suffix string) (map[string]interface{}, bool) {
	st := map[string]interface{}{
		"accessTime": 0, "blockSize": 134217728, "group": "supergroup", "owner": "hdfs",
		"permission": "755", "pathSuffix": suffix, "modificationTime": 1320171722771,
	}
	if d, ok := s.files[p]; ok {
		st["type"] = "FILE"
		st["length"] = len(d)
		st["replication"] = 3
		st["permission"] = "644"
		return st, true
	}
	if s.dirs[p] {
		st["type"] = "DIRECTORY"
		st["length"] = 0
		st["replication"] = 0
		st["blockSize"] = 0
		return st, true
	}
	return nil, false
}

func (s *Server) list(dir string) []map[string]interface{} {
	names := make(map[string]bool)
	for p := range s.files {
		if parent(p) == dir {
			names[p] = true
		}
	}
	for p := range s.dirs {
		if p != dir && parent(p) == dir {
			names[p] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for p := range names {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	res := make([]map[string]interface{}, 0, len(sorted))
	for _, p := range sorted {
		st, _ := s.status(p, p[strings.LastIndex(p, "/")+1:])
		res = append(res, st)
	}
	return res
}

func fileStatuses(sts []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"FileStatuses": map[string]interface{}{"FileStatus": sts}}
}

func parent(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func under(p, dir string) bool {
	return p == dir || dir == "/" || strings.HasPrefix(p, dir+"/")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}

func writeNotFound(w http.ResponseWriter, p string) {
	writeException(w, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+p)
}

func writeException(w http.ResponseWriter, status int, exc, msg string) {
	writeJSON(w, status, map[string]interface{}{"RemoteException": map[string]string{
		"exception": exc, "javaClassName": "java.io." + exc, "message": msg}})
}
