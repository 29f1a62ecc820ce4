package storage

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
)

// DefaultTimeout bounds connection setup and waiting for response headers.
// Bodies may take longer: large uploads are not cut off mid-stream.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient builds the HTTP client a provider uses. Credentials are not
// part of the client; providers attach them per request.
func NewHTTPClient(policy models.TransportPolicy, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout

	if policy == models.TransportInsecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in for self-hosted backends
	}

	return &http.Client{Transport: tr}
}
