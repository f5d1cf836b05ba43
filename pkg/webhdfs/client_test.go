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
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logrange/lrhdfs/pkg/webhdfs/webhdfstest"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (fc *fakeClock) Now() time.Time {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.now
}

func (fc *fakeClock) Add(d time.Duration) {
	fc.lock.Lock()
	fc.now = fc.now.Add(d)
	fc.lock.Unlock()
}

func newTestClient(t *testing.T, srv *webhdfstest.Server) *Client {
	c, err := NewClient(&Config{BaseURL: srv.URL(), Principal: "alice"})
	if err != nil {
		t.Fatal("could not create client, err=", err)
	}
	return c
}

func TestConfigCheck(t *testing.T) {
	assert.NotNil(t, (&Config{}).Check())
	assert.NotNil(t, (&Config{BaseURL: "ftp://host:21"}).Check())
	assert.NotNil(t, (&Config{BaseURL: "http://"}).Check())
	assert.NotNil(t, (&Config{BaseURL: "http://host:50070", Scheme: SchemeExternal}).Check())
	assert.Nil(t, (&Config{BaseURL: "http://host:50070", Principal: "alice"}).Check())

	cfg := Config{BaseURL: "http://host:50070", Secret: "s3cr3t"}
	assert.NotContains(t, cfg.String(), "s3cr3t")
}

func TestOpen(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.PutFile("/tmp/country.txt", []byte("India is my Country"))

	c := newTestClient(t, srv)
	var buf bytes.Buffer
	resp, err := c.Open(context.Background(), "/tmp/country.txt", &buf, nil)
	assert.Nil(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "India is my Country", buf.String())
	assert.Equal(t, "", resp.Body)

	buf.Reset()
	resp, err = c.Open(context.Background(), "/tmp/country.txt", &buf, &OpenOptions{Offset: int64Ptr(9), Length: int64Ptr(2)})
	assert.Nil(t, err)
	assert.Equal(t, "my", buf.String())

	buf.Reset()
	resp, err = c.Open(context.Background(), "/tmp/nothing.txt", &buf, nil)
	assert.Nil(t, err)
	assert.True(t, resp.IsNotFound())
	assert.Equal(t, 0, buf.Len())
}

func TestTokenRefreshOnlyWhenExpired(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	clk := &fakeClock{now: time.Unix(1500000000, 0)}
	srv.SetNow(clk.Now)
	srv.TokenTTL = time.Minute

	c := newTestClient(t, srv)
	c.nowFn = clk.Now
	ctx := context.Background()

	_, err := c.ListStatus(ctx, "/")
	assert.Nil(t, err)
	assert.Equal(t, 1, srv.TokensIssued())
	assert.Equal(t, clk.Now().Add(time.Minute).UnixMilli(), c.Token().ExpiresMillis())

	// exactly at the expiry the token is still valid
	clk.Add(time.Minute)
	_, err = c.ListStatus(ctx, "/")
	assert.Nil(t, err)
	assert.Equal(t, 1, srv.TokensIssued())

	clk.Add(time.Millisecond)
	_, err = c.ListStatus(ctx, "/")
	assert.Nil(t, err)
	assert.Equal(t, 2, srv.TokensIssued())

	calls := srv.CallsOf(webhdfstest.NodeName, "LISTSTATUS")
	assert.Len(t, calls, 2)
	assert.Equal(t, c.Token().Value(), calls[1].Cookie)
	assert.Equal(t, "alice", calls[1].Query.Get("user.name"))
}

func TestAuthFailureLeavesTokenUnset(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.AuthStatus = http.StatusInternalServerError

	c := newTestClient(t, srv)
	resp, err := c.ListStatus(context.Background(), "/")
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())
	assert.False(t, c.Token().IsSet())

	_, err = c.ListStatus(context.Background(), "/")
	assert.Nil(t, err)
	assert.Len(t, srv.CallsOf(webhdfstest.NodeName, "GETHOMEDIRECTORY"), 2)
}

func TestMalformedTokenIsProtocolViolation(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.TokenValue = "u=alice&p=alice&t=simple"

	c := newTestClient(t, srv)
	_, err := c.ListStatus(context.Background(), "/")
	assert.True(t, IsProtocolViolation(err))
	assert.Len(t, srv.CallsOf(webhdfstest.NodeName, "LISTSTATUS"), 0)
}

func TestCreateTwoPhase(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	payload := "hello\nworld\n"
	resp, err := c.Create(context.Background(), "/tmp/a.txt", strings.NewReader(payload), int64(len(payload)), nil)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Created", resp.StatusText)

	nn := srv.CallsOf(webhdfstest.NodeName, "CREATE")
	assert.Len(t, nn, 1)
	assert.Equal(t, http.MethodPut, nn[0].Method)
	assert.Equal(t, 0, len(nn[0].Body))
	assert.NotEqual(t, "", nn[0].Cookie)

	dn := srv.CallsOf(webhdfstest.NodeData, "CREATE")
	assert.Len(t, dn, 1)
	assert.Equal(t, http.MethodPut, dn[0].Method)
	assert.Equal(t, int64(len(payload)), dn[0].ContentLength)
	assert.Len(t, dn[0].TransferEncoding, 0)
	assert.Equal(t, "application/octet-stream", dn[0].ContentType)
	assert.Equal(t, "no-cache", dn[0].Header.Get("Cache-Control"))
	// the simple scheme sends the pre-authorized URL as is
	assert.Equal(t, "", dn[0].Cookie)
	assert.Equal(t, payload, string(dn[0].Body))

	data, ok := srv.File("/tmp/a.txt")
	assert.True(t, ok)
	assert.Equal(t, payload, string(data))
}

func TestCreateOptions(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.PutFile("/tmp/a.txt", []byte("old"))

	c := newTestClient(t, srv)
	no := false
	resp, err := c.Create(context.Background(), "/tmp/a.txt", strings.NewReader("new"), 3, &CreateOptions{Overwrite: &no, Permission: "600"})
	assert.Nil(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Len(t, srv.CallsOf(webhdfstest.NodeData, "CREATE"), 0)

	nn := srv.CallsOf(webhdfstest.NodeName, "CREATE")
	assert.Equal(t, "false", nn[0].Query.Get("overwrite"))
	assert.Equal(t, "600", nn[0].Query.Get("permission"))
}

func TestCreateEmpty(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Create(context.Background(), "/tmp/empty", strings.NewReader(""), 0, nil)
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())

	dn := srv.CallsOf(webhdfstest.NodeData, "CREATE")
	assert.Len(t, dn, 1)
	assert.Equal(t, int64(0), dn[0].ContentLength)
	assert.Len(t, dn[0].TransferEncoding, 0)
}

func TestAppend(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.PutFile("/tmp/b.txt", []byte("x\n"))

	c := newTestClient(t, srv)
	resp, err := c.Append(context.Background(), "/tmp/b.txt", strings.NewReader("y\nz\n"), 4)
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())

	dn := srv.CallsOf(webhdfstest.NodeData, "APPEND")
	assert.Len(t, dn, 1)
	assert.Equal(t, http.MethodPost, dn[0].Method)
	assert.Equal(t, int64(4), dn[0].ContentLength)

	data, _ := srv.File("/tmp/b.txt")
	assert.Equal(t, "x\ny\nz\n", string(data))
}

func TestAppendNotFound(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Append(context.Background(), "/tmp/none.txt", strings.NewReader("a"), 1)
	assert.Nil(t, err)
	assert.True(t, resp.IsNotFound())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	re, ok := resp.RemoteException()
	assert.True(t, ok)
	assert.Equal(t, "FileNotFoundException", re.Exception)
	assert.Len(t, srv.CallsOf(webhdfstest.NodeData, "APPEND"), 0)
}

func TestWriteWithoutRedirect(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	srv.NoRedirect = true
	_, err := c.Create(context.Background(), "/tmp/a.txt", strings.NewReader("a"), 1, nil)
	assert.True(t, IsProtocolViolation(err))

	srv.NoRedirect = false
	srv.NoLocation = true
	_, err = c.Create(context.Background(), "/tmp/a.txt", strings.NewReader("a"), 1, nil)
	assert.True(t, IsProtocolViolation(err))
	assert.Len(t, srv.CallsOf(webhdfstest.NodeData, "CREATE"), 0)
}

func TestTransportFailure(t *testing.T) {
	srv := webhdfstest.NewServer()
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.ListStatus(context.Background(), "/")
	assert.NotNil(t, err)
	assert.False(t, IsProtocolViolation(err))
}

func TestRequestTimeout(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.Delay = 300 * time.Millisecond

	c, err := NewClient(&Config{BaseURL: srv.URL(), Principal: "alice", RequestTimeout: 50 * time.Millisecond})
	assert.Nil(t, err)
	_, err = c.Create(context.Background(), "/tmp/a.txt", strings.NewReader("a"), 1, nil)
	assert.NotNil(t, err)
}

func TestFileStatusUsesItsOwnVerb(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	srv.PutFile("/tmp/a.txt", []byte("abc"))

	c := newTestClient(t, srv)
	resp, err := c.FileStatus(context.Background(), "/tmp/a.txt")
	assert.Nil(t, err)
	fs, err := resp.FileStatus()
	assert.Nil(t, err)
	assert.Equal(t, TypeFile, fs.Type)
	assert.Equal(t, int64(3), fs.Length)
	assert.Len(t, srv.CallsOf(webhdfstest.NodeName, "GETFILESTATUS"), 1)
	assert.Len(t, srv.CallsOf(webhdfstest.NodeName, "LISTSTATUS"), 0)
}

func TestNamespaceOps(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()
	ctx := context.Background()
	c := newTestClient(t, srv)

	resp, err := c.HomeDirectory(ctx)
	assert.Nil(t, err)
	p, err := resp.Path()
	assert.Nil(t, err)
	assert.Equal(t, "/user/alice", p)

	resp, err = c.Mkdirs(ctx, "/data/logs", "755")
	assert.Nil(t, err)
	ok, err := resp.Boolean()
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "755", srv.CallsOf(webhdfstest.NodeName, "MKDIRS")[0].Query.Get("permission"))

	srv.PutFile("/data/logs/a.log", []byte("12345"))
	resp, err = c.Rename(ctx, "/data/logs/a.log", "data/logs/b.log")
	assert.Nil(t, err)
	ok, _ = resp.Boolean()
	assert.True(t, ok)
	assert.Equal(t, "/data/logs/b.log", srv.CallsOf(webhdfstest.NodeName, "RENAME")[0].Query.Get("destination"))

	resp, err = c.ListStatus(ctx, "/data/logs")
	assert.Nil(t, err)
	sts, err := resp.FileStatuses()
	assert.Nil(t, err)
	assert.Len(t, sts, 1)
	assert.Equal(t, "b.log", sts[0].PathSuffix)

	resp, err = c.ContentSummary(ctx, "/data")
	assert.Nil(t, err)
	cs, err := resp.ContentSummary()
	assert.Nil(t, err)
	assert.Equal(t, int64(1), cs.FileCount)
	assert.Equal(t, int64(5), cs.Length)

	resp, err = c.FileChecksum(ctx, "/data/logs/b.log")
	assert.Nil(t, err)
	fc, err := resp.FileChecksum()
	assert.Nil(t, err)
	assert.Equal(t, 28, fc.Length)

	_, err = c.SetOwner(ctx, "/data/logs/b.log", "", "staff")
	assert.Nil(t, err)
	q := srv.CallsOf(webhdfstest.NodeName, "SETOWNER")[0].Query
	assert.Equal(t, "staff", q.Get("group"))
	_, has := q["owner"]
	assert.False(t, has)

	_, err = c.SetTimes(ctx, "/data/logs/b.log", time.Unix(10, 0), time.Time{})
	assert.Nil(t, err)
	q = srv.CallsOf(webhdfstest.NodeName, "SETTIMES")[0].Query
	assert.Equal(t, "10000", q.Get("modificationtime"))
	assert.Equal(t, "-1", q.Get("accesstime"))

	resp, err = c.SetReplication(ctx, "/data/logs/b.log", 2)
	assert.Nil(t, err)
	ok, _ = resp.Boolean()
	assert.True(t, ok)

	resp, err = c.SetPermission(ctx, "/data/logs/b.log", "600")
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())

	resp, err = c.CreateSymlink(ctx, "/data/link", "/data/logs/b.log")
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())

	resp, err = c.Delete(ctx, "/data", false)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotNil(t, resp.Err())

	resp, err = c.Delete(ctx, "/data", true)
	assert.Nil(t, err)
	ok, _ = resp.Boolean()
	assert.True(t, ok)
	_, exists := srv.File("/data/logs/b.log")
	assert.False(t, exists)
}

func TestPathEscaping(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Create(context.Background(), "tmp/with space&amp.txt", strings.NewReader("a"), 1, nil)
	assert.Nil(t, err)
	data, ok := srv.File("/tmp/with space&amp.txt")
	assert.True(t, ok)
	assert.Equal(t, "a", string(data))
}

func TestExternalScheme(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c, err := NewClient(&Config{BaseURL: srv.URL(), Principal: "svc", Secret: "t0ken",
		Scheme: SchemeExternal, Negotiator: &HeaderNegotiator{Prefix: "Bearer "}})
	assert.Nil(t, err)

	resp, err := c.Create(context.Background(), "/tmp/k.txt", strings.NewReader("abc"), 3, nil)
	assert.Nil(t, err)
	assert.True(t, resp.IsSuccess())

	probe := srv.CallsOf(webhdfstest.NodeName, "GETHOMEDIRECTORY")
	assert.Len(t, probe, 1)
	assert.Equal(t, "Bearer t0ken", probe[0].Header.Get("Authorization"))
	assert.Equal(t, "", probe[0].Query.Get("user.name"))

	dn := srv.CallsOf(webhdfstest.NodeData, "CREATE")
	assert.Len(t, dn, 1)
	assert.Equal(t, "Bearer t0ken", dn[0].Header.Get("Authorization"))
	assert.Equal(t, c.Token().Value(), dn[0].Cookie)
}

func TestConcurrentRefreshIsSerialized(t *testing.T) {
	srv := webhdfstest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListStatus(context.Background(), "/")
			assert.Nil(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, srv.TokensIssued())
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("Kerberos")
	assert.Nil(t, err)
	assert.Equal(t, SchemeExternal, s)
	s, err = ParseScheme("")
	assert.Nil(t, err)
	assert.Equal(t, SchemeSimple, s)
	_, err = ParseScheme("digest")
	assert.NotNil(t, err)
}

func int64Ptr(v int64) *int64 {
	return &v
}
