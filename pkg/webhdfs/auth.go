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
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Scheme defines how the client proves its identity to the service
	Scheme int

	// Credential is the identity the client acts on behalf of
	Credential struct {
		Principal string
		Secret    string
		Scheme    Scheme
	}

	// HTTPDoer is the transport the client and negotiators use
	HTTPDoer interface {
		Do(req *http.Request) (*http.Response, error)
	}

	// Negotiator runs an external trust protocol (SPNEGO, gateway tokens etc.) on
	// behalf of the client. It is used only with SchemeExternal.
	Negotiator interface {
		// Negotiate performs the whole, possibly multi round trip, exchange for the
		// probe request and returns the final response. The client takes the
		// hadoop.auth cookie from it.
		Negotiate(ctx context.Context, doer HTTPDoer, probe *http.Request, cred Credential) (*http.Response, error)

		// Decorate adds the protocol specific headers to a regular request
		Decorate(req *http.Request, cred Credential) error
	}

	// HeaderNegotiator is the simplest Negotiator which passes Credential.Secret
	// in a header on every request, like a gateway bearer token does.
	HeaderNegotiator struct {
		// Header is the header name, Authorization is used if empty
		Header string
		// Prefix is prepended to the secret, e.g. "Bearer "
		Prefix string
	}

	// authenticator dispatches the authentication steps on the credential scheme
	authenticator struct {
		cred Credential
		neg  Negotiator
	}
)

const (
	// SchemeSimple trusts the principal passed in the user.name query parameter
	SchemeSimple Scheme = iota
	// SchemeExternal delegates the identity exchange to a Negotiator
	SchemeExternal
)

const (
	paramUserName = "user.name"
)

//===================== scheme =====================

// ParseScheme returns the Scheme by its name
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return SchemeSimple, nil
	case "external", "kerberos":
		return SchemeExternal, nil
	}
	return SchemeSimple, errors.Errorf("unknown auth scheme %q, expected simple or external", s)
}

func (s Scheme) String() string {
	switch s {
	case SchemeSimple:
		return "simple"
	case SchemeExternal:
		return "external"
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

// MarshalText lets configs carry the scheme by name
func (s Scheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scheme) UnmarshalText(b []byte) error {
	v, err := ParseScheme(string(b))
	if err == nil {
		*s = v
	}
	return err
}

//===================== credential =====================

// String never prints the secret
func (c Credential) String() string {
	return fmt.Sprintf("{principal=%s, scheme=%s, secret=%t}", c.Principal, c.Scheme, c.Secret != "")
}

//===================== authenticator =====================

func newAuthenticator(cred Credential, neg Negotiator) (*authenticator, error) {
	switch cred.Scheme {
	case SchemeSimple:
	case SchemeExternal:
		if neg == nil {
			return nil, errors.New("external scheme requires a Negotiator")
		}
	default:
		return nil, errors.Errorf("unsupported scheme %s", cred.Scheme)
	}
	return &authenticator{cred: cred, neg: neg}, nil
}

// query adds the identity query parameters to a namespace request
func (a *authenticator) query(q url.Values) {
	if a.cred.Scheme == SchemeSimple && a.cred.Principal != "" {
		q.Set(paramUserName, a.cred.Principal)
	}
}

// probe runs the identity exchange for the request
func (a *authenticator) probe(ctx context.Context, doer HTTPDoer, req *http.Request) (*http.Response, error) {
	switch a.cred.Scheme {
	case SchemeExternal:
		return a.neg.Negotiate(ctx, doer, req, a.cred)
	default:
		return doer.Do(req)
	}
}

// decorate prepares a namespace request: the token travels in the cookie, the
// external scheme adds its own headers.
func (a *authenticator) decorate(req *http.Request, tok Token) error {
	if tok.IsSet() {
		req.Header.Set("Cookie", AuthCookieName+"="+tok.Value())
	}
	if a.cred.Scheme == SchemeExternal {
		return a.neg.Decorate(req, a.cred)
	}
	return nil
}

// decorateData prepares a request to the data endpoint a namespace redirect
// pointed to. For the simple scheme the redirect URL is already authorized by
// the namenode, so the request goes as is.
func (a *authenticator) decorateData(req *http.Request, tok Token) error {
	switch a.cred.Scheme {
	case SchemeExternal:
		return a.decorate(req, tok)
	default:
		return nil
	}
}

//===================== headerNegotiator =====================

func (hn *HeaderNegotiator) Negotiate(ctx context.Context, doer HTTPDoer, probe *http.Request, cred Credential) (*http.Response, error) {
	if err := hn.Decorate(probe, cred); err != nil {
		return nil, err
	}
	return doer.Do(probe.WithContext(ctx))
}

func (hn *HeaderNegotiator) Decorate(req *http.Request, cred Credential) error {
	if cred.Secret == "" {
		return errors.New("HeaderNegotiator needs non-empty secret")
	}
	h := hn.Header
	if h == "" {
		h = "Authorization"
	}
	req.Header.Set(h, hn.Prefix+cred.Secret)
	return nil
}
