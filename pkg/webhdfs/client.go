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
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrivets/log4g"
	"github.com/logrange/lrhdfs/pkg/utils"
	"github.com/pkg/errors"
)

type (
	// Config contains the client settings
	Config struct {
		// BaseURL is the namenode address, e.g. http://localhost:50070
		BaseURL   string
		Principal string
		Secret    string `json:"-"`
		Scheme    Scheme

		// RequestTimeout limits one HTTP exchange including its body, 0 means no limit
		RequestTimeout time.Duration

		// Negotiator must be provided for SchemeExternal
		Negotiator Negotiator `json:"-"`
		// Transport allows to replace http.DefaultTransport
		Transport http.RoundTripper `json:"-"`
	}

	// Client is the WebHDFS REST client. It owns the session token, refreshes it
	// before any remote call when it is unset or expired, and implements the
	// two-phase namenode/datanode write for CREATE and APPEND.
	//
	// The Client is safe for concurrent use.
	Client struct {
		cfg  Config
		base *url.URL
		auth *authenticator

		// follow is used for reads which are redirected to datanodes
		follow *http.Client
		// noFollow returns redirects to the caller, used by writes
		noFollow *http.Client

		// refreshLock serializes token refreshes
		refreshLock sync.Mutex
		lock        sync.RWMutex
		token       Token

		nowFn  func() time.Time
		logger log4g.Logger
	}
)

const (
	webhdfsPrefix = "/webhdfs/v1"
	paramOp       = "op"

	maxRedirects = 10
	// the copy buffer size for streamed reads
	copyBufSize = 12 * 1024
	// how much of an unneeded body is read to reuse the connection
	maxDrainSize = 64 * 1024
)

//===================== config =====================

func (c *Config) Check() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("invalid BaseURL=%q, must be non-empty", c.BaseURL)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid BaseURL=%q: %v", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid BaseURL=%q, scheme must be http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid BaseURL=%q, host must be specified", c.BaseURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid RequestTimeout=%v, must be >= 0", c.RequestTimeout)
	}
	if c.Scheme == SchemeExternal && c.Negotiator == nil {
		return fmt.Errorf("Negotiator must be provided for scheme=%s", c.Scheme)
	}
	return nil
}

func (c Config) String() string {
	c.Secret = ""
	return utils.ToJsonStr(c)
}

//===================== client =====================

// NewClient creates the Client. No remote calls are made until the first
// operation.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config; %v", err)
	}

	base, _ := url.Parse(cfg.BaseURL)
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""
	base.RawQuery = ""

	auth, err := newAuthenticator(Credential{Principal: cfg.Principal, Secret: cfg.Secret, Scheme: cfg.Scheme}, cfg.Negotiator)
	if err != nil {
		return nil, err
	}

	c := new(Client)
	c.cfg = *cfg
	c.base = base
	c.auth = auth
	c.nowFn = time.Now
	c.logger = log4g.GetLogger("webhdfs.Client").WithId(fmt.Sprintf("[%s]", base.Host)).(log4g.Logger)

	tr := cfg.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}
	c.follow = &http.Client{
		Transport: tr,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Errorf("stopped after %d redirects", maxRedirects)
			}
			return c.auth.decorateData(req, c.Token())
		},
	}
	c.noFollow = &http.Client{
		Transport: tr,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c, nil
}

// Token returns the current token, it could be unset
func (c *Client) Token() Token {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.token
}

func (c *Client) setToken(tok Token) {
	c.lock.Lock()
	c.token = tok
	c.lock.Unlock()
}

// Close releases idle connections
func (c *Client) Close() error {
	c.follow.CloseIdleConnections()
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("{base=%s, cred=%s}", c.base, c.auth.cred)
}

//===================== client.token =====================

// ensureValidToken obtains a new token if the current one is unset or expired.
// A failed identity exchange is logged and leaves the token unset so the next
// call retries; a malformed token is returned as ErrProtocolViolation.
func (c *Client) ensureValidToken(ctx context.Context) error {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	tok := c.Token()
	if tok.IsSet() && !tok.IsExpired(c.nowFn()) {
		return nil
	}

	c.logger.Debug("Token ", tok, " is unset or expired, authenticating")
	nt, err := c.authenticate(ctx)
	if err != nil {
		if IsProtocolViolation(err) {
			c.setToken(Token{})
			return err
		}
		c.logger.Warn("Authentication failed, will retry on the next call, err=", err)
		nt = Token{}
	}
	c.setToken(nt)
	return nil
}

// authenticate probes GETHOMEDIRECTORY and takes the token from the answer
func (c *Client) authenticate(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opURL("/", opGetHomeDirectory, nil).String(), nil)
	if err != nil {
		return Token{}, errors.Wrapf(err, "could not build the auth probe")
	}

	resp, err := c.auth.probe(ctx, c.follow, req)
	if err != nil {
		return Token{}, errors.Wrapf(err, "auth probe failed")
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, errors.Errorf("auth probe failed with status %s", resp.Status)
	}

	blob, ok := authCookie(resp)
	if !ok {
		c.logger.Info("No ", AuthCookieName, " cookie issued, requests go without the token")
		return Token{}, nil
	}

	tok, err := ParseToken(blob)
	if err != nil {
		return Token{}, err
	}
	c.logger.Debug("Authenticated, token=", tok)
	return tok, nil
}

// captureToken replaces the token if the service re-issued it
func (c *Client) captureToken(resp *http.Response) {
	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("Got 401, the token is reset")
		c.setToken(Token{})
		return
	}

	blob, ok := authCookie(resp)
	if !ok || blob == c.Token().Value() {
		return
	}
	tok, err := ParseToken(blob)
	if err != nil {
		c.logger.Warn("Ignoring re-issued token, err=", err)
		return
	}
	c.setToken(tok)
}

func authCookie(resp *http.Response) (string, bool) {
	for _, ck := range resp.Cookies() {
		if ck.Name == AuthCookieName && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}

//===================== client.exchange =====================

// opURL builds the namespace URL for the operation
func (c *Client) opURL(path, op string, params url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + webhdfsPrefix + normalizePath(path)
	q := make(url.Values, len(params)+2)
	for k, v := range params {
		q[k] = v
	}
	q.Set(paramOp, op)
	c.auth.query(q)
	u.RawQuery = q.Encode()
	return &u
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// exchange runs a body-less namespace request
func (c *Client) exchange(ctx context.Context, hc *http.Client, method string, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build %s request", method)
	}
	if err := c.auth.decorate(req, c.Token()); err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s failed", method, redact(u))
	}
	c.captureToken(resp)
	return resp, nil
}

// call runs a namespace request with the token checked and reads the whole answer
func (c *Client) call(ctx context.Context, hc *http.Client, method, path, op string, params url.Values) (*Response, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}
	resp, err := c.exchange(ctx, hc, method, c.opURL(path, op, params))
	if err != nil {
		return nil, err
	}
	return newResponse(resp)
}

// write is the two-phase data write. Phase one asks the namenode where to put
// the data and expects 307 with Location, phase two streams exactly size bytes
// of r to that location with the same method.
func (c *Client) write(ctx context.Context, method, path, op string, params url.Values, r io.Reader, size int64) (*Response, error) {
	if size < 0 {
		return nil, errors.Errorf("invalid size=%d, must be >= 0", size)
	}
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, c.noFollow, method, c.opURL(path, op, params))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusTemporaryRedirect {
		res, err := newResponse(resp)
		if err != nil {
			return nil, err
		}
		if res.IsSuccess() {
			return nil, protocolViolation("%s %s answered %d, redirect expected", op, path, res.StatusCode)
		}
		return res, nil
	}

	loc := resp.Header.Get("Location")
	drainAndClose(resp)
	if loc == "" {
		return nil, protocolViolation("%s %s answered 307 without Location", op, path)
	}
	du, err := resp.Request.URL.Parse(loc)
	if err != nil {
		return nil, protocolViolation("%s %s redirected to unparsable Location: %v", op, path, err)
	}

	c.logger.Trace(op, " ", path, " redirected to ", du.Host)
	return c.sendData(ctx, method, du, r, size)
}

func (c *Client) sendData(ctx context.Context, method string, u *url.URL, r io.Reader, size int64) (*Response, error) {
	var body io.Reader = http.NoBody
	if size > 0 {
		body = r
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build data request")
	}
	// known length, no chunked transfer encoding
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if err := c.auth.decorateData(req, c.Token()); err != nil {
		return nil, err
	}

	resp, err := c.noFollow.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s to data endpoint %s failed", method, u.Host)
	}
	return newResponse(resp)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(ioutil.Discard, io.LimitReader(resp.Body, maxDrainSize))
	_ = resp.Body.Close()
}

// redact drops the query which could carry delegation tokens
func redact(u *url.URL) string {
	cu := *u
	cu.RawQuery = ""
	return cu.String()
}
