package vidget

import (
	"io"
	"net/http"
	"time"
)

// Version is reported in the User-Agent header and by the CLI.
const Version = "1.0.0"

// WithTimeout sets the deadline applied to each backend request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithIdleTimeout sets how long a file transfer may go without receiving data.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.idleTimeout = timeout
		}
	}
}

// WithVerboseOutput sets an io.Writer for verbose logging.
func WithVerboseOutput(w io.Writer) Option {
	return func(c *Client) {
		if w != nil {
			c.logger.SetOutput(w)
		}
	}
}

// WithHTTPClient bases the underlying HTTP client on a copy of hc, so hc
// itself is never modified. If hc has no cookie jar the copy gets the
// client's own jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.client = &cp
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTransferProgress sets a channel that receives byte progress while
// SaveFile streams a download to disk.
func WithTransferProgress(ch chan<- TransferProgress) Option {
	return func(c *Client) {
		c.transfers = ch
	}
}
