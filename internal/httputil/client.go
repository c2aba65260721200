// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package httputil

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ClientOptions specifies options for creating an HTTP client tuned for a
// long-lived connection pool to a single upstream, the shape
// LogSender/ConnectionPool need rather than the one-shot request client a
// plain http.Client{Timeout: ...} gives you.
type ClientOptions struct {
	// Timeout bounds an entire request round trip, including redirects.
	Timeout time.Duration
	// ConnectTimeout bounds establishing the TCP connection.
	ConnectTimeout time.Duration
	// IdleConnTimeout bounds how long an idle keep-alive connection is kept
	// open before the transport closes it.
	IdleConnTimeout time.Duration
	// MaxIdleConnsPerHost caps pooled idle connections to a single host.
	MaxIdleConnsPerHost int
	// KeepAlive is the TCP keep-alive probe interval.
	KeepAlive time.Duration
}

// NewClient creates an HTTP client backed by a transport dedicated to this
// set of options; callers that need connection pooling across many
// requests should keep the returned client rather than constructing one
// per call.
func NewClient(opts ClientOptions) *http.Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: opts.KeepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     opts.IdleConnTimeout,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

// ValidateURL validates that rawURL parses and uses http or https.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return nil
}
