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
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type (
	// OpenOptions are the optional OPEN parameters
	OpenOptions struct {
		Offset *int64
		Length *int64
	}

	// CreateOptions are the optional CREATE parameters
	CreateOptions struct {
		Overwrite   *bool
		BlockSize   *int64
		Replication *int
		// Permission in octal, e.g. "644"
		Permission string
	}
)

const (
	opGetHomeDirectory  = "GETHOMEDIRECTORY"
	opOpen              = "OPEN"
	opGetContentSummary = "GETCONTENTSUMMARY"
	opListStatus        = "LISTSTATUS"
	opGetFileStatus     = "GETFILESTATUS"
	opGetFileChecksum   = "GETFILECHECKSUM"
	opCreate            = "CREATE"
	opAppend            = "APPEND"
	opMkdirs            = "MKDIRS"
	opCreateSymlink     = "CREATESYMLINK"
	opRename            = "RENAME"
	opSetPermission     = "SETPERMISSION"
	opSetOwner          = "SETOWNER"
	opSetReplication    = "SETREPLICATION"
	opSetTimes          = "SETTIMES"
	opDelete            = "DELETE"
)

//===================== reads =====================

// HomeDirectory returns the home directory of the principal, the body is {"Path": "..."}
func (c *Client) HomeDirectory(ctx context.Context) (*Response, error) {
	return c.call(ctx, c.follow, http.MethodGet, "/", opGetHomeDirectory, nil)
}

// Open reads the file into w. For 2xx answers the content is streamed to w and
// the returned Response has an empty body; otherwise nothing is written to w
// and the Response carries the error body.
func (c *Client) Open(ctx context.Context, path string, w io.Writer, opts *OpenOptions) (*Response, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if opts != nil {
		if opts.Offset != nil {
			params.Set("offset", strconv.FormatInt(*opts.Offset, 10))
		}
		if opts.Length != nil {
			params.Set("length", strconv.FormatInt(*opts.Length, 10))
		}
	}

	resp, err := c.exchange(ctx, c.follow, http.MethodGet, c.opURL(path, opOpen, params))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newResponse(resp)
	}

	defer resp.Body.Close()
	n, err := io.CopyBuffer(w, resp.Body, make([]byte, copyBufSize))
	if err != nil {
		return nil, errors.Wrapf(err, "OPEN %s failed after %d bytes", path, n)
	}
	return newResponseHead(resp), nil
}

func (c *Client) ContentSummary(ctx context.Context, path string) (*Response, error) {
	return c.call(ctx, c.follow, http.MethodGet, path, opGetContentSummary, nil)
}

func (c *Client) ListStatus(ctx context.Context, path string) (*Response, error) {
	return c.call(ctx, c.follow, http.MethodGet, path, opListStatus, nil)
}

func (c *Client) FileStatus(ctx context.Context, path string) (*Response, error) {
	return c.call(ctx, c.follow, http.MethodGet, path, opGetFileStatus, nil)
}

func (c *Client) FileChecksum(ctx context.Context, path string) (*Response, error) {
	return c.call(ctx, c.follow, http.MethodGet, path, opGetFileChecksum, nil)
}

//===================== data writes =====================

// Create writes size bytes from r into a new file. opts could be nil.
func (c *Client) Create(ctx context.Context, path string, r io.Reader, size int64, opts *CreateOptions) (*Response, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Overwrite != nil {
			params.Set("overwrite", strconv.FormatBool(*opts.Overwrite))
		}
		if opts.BlockSize != nil {
			params.Set("blocksize", strconv.FormatInt(*opts.BlockSize, 10))
		}
		if opts.Replication != nil {
			params.Set("replication", strconv.Itoa(*opts.Replication))
		}
		if opts.Permission != "" {
			params.Set("permission", opts.Permission)
		}
	}
	return c.write(ctx, http.MethodPut, path, opCreate, params, r, size)
}

// Append adds size bytes from r to the end of an existing file. If the file
// does not exist the namenode answer is returned, Response.IsNotFound() is true
// then.
func (c *Client) Append(ctx context.Context, path string, r io.Reader, size int64) (*Response, error) {
	return c.write(ctx, http.MethodPost, path, opAppend, nil, r, size)
}

//===================== namespace writes =====================

// Mkdirs creates the directory with all its parents. permission could be empty.
func (c *Client) Mkdirs(ctx context.Context, path, permission string) (*Response, error) {
	params := url.Values{}
	if permission != "" {
		params.Set("permission", permission)
	}
	return c.call(ctx, c.noFollow, http.MethodPut, path, opMkdirs, params)
}

// CreateSymlink creates the link src pointing to dst
func (c *Client) CreateSymlink(ctx context.Context, src, dst string) (*Response, error) {
	params := url.Values{}
	params.Set("destination", normalizePath(dst))
	return c.call(ctx, c.noFollow, http.MethodPut, src, opCreateSymlink, params)
}

func (c *Client) Rename(ctx context.Context, src, dst string) (*Response, error) {
	params := url.Values{}
	params.Set("destination", normalizePath(dst))
	return c.call(ctx, c.noFollow, http.MethodPut, src, opRename, params)
}

func (c *Client) SetPermission(ctx context.Context, path, permission string) (*Response, error) {
	params := url.Values{}
	if permission != "" {
		params.Set("permission", permission)
	}
	return c.call(ctx, c.noFollow, http.MethodPut, path, opSetPermission, params)
}

// SetOwner changes owner and/or group, empty values are left unchanged
func (c *Client) SetOwner(ctx context.Context, path, owner, group string) (*Response, error) {
	params := url.Values{}
	if owner != "" {
		params.Set("owner", owner)
	}
	if group != "" {
		params.Set("group", group)
	}
	return c.call(ctx, c.noFollow, http.MethodPut, path, opSetOwner, params)
}

func (c *Client) SetReplication(ctx context.Context, path string, replication int) (*Response, error) {
	params := url.Values{}
	params.Set("replication", strconv.Itoa(replication))
	return c.call(ctx, c.noFollow, http.MethodPut, path, opSetReplication, params)
}

// SetTimes sets modification and access times, zero values are left unchanged
func (c *Client) SetTimes(ctx context.Context, path string, mtime, atime time.Time) (*Response, error) {
	params := url.Values{}
	params.Set("modificationtime", strconv.FormatInt(millisOrUnset(mtime), 10))
	params.Set("accesstime", strconv.FormatInt(millisOrUnset(atime), 10))
	return c.call(ctx, c.noFollow, http.MethodPut, path, opSetTimes, params)
}

func (c *Client) Delete(ctx context.Context, path string, recursive bool) (*Response, error) {
	params := url.Values{}
	if recursive {
		params.Set("recursive", "true")
	}
	return c.call(ctx, c.noFollow, http.MethodDelete, path, opDelete, params)
}

func millisOrUnset(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return t.UnixMilli()
}
