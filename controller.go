package vidget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Messages shown in the status banner.
const (
	MsgInvalidURL     = "Please enter a valid URL"
	MsgSuccess        = "Video processed successfully!"
	MsgDownloadFailed = "Failed to download video"
	MsgGenericError   = "An error occurred while processing the video"
	ExpiryNotice      = "Note: This download link will expire in 1 hour"
)

var (
	ErrEmptyURL        = errors.New("empty video URL")
	ErrRequestInFlight = errors.New("a download request is already in flight")
)

// DownloadPath is the backend endpoint that processes a video URL.
const DownloadPath = "/download"

// DownloadRequest is the body posted to DownloadPath.
type DownloadRequest struct {
	URL string `json:"url"`
}

// DownloadResponse is the backend's answer to a successful request.
type DownloadResponse struct {
	DownloadURL string `json:"download_url"`
	Title       string `json:"title"`
	Error       string `json:"error,omitempty"`
}

// State is the controller's position in a request's lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateInFlight
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateInFlight:
		return "InFlight"
	case StateSuccess:
		return "Success"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Controller runs one download request at a time: validate the URL, reset
// the view, call the backend and render the outcome. Every path ends back
// in StateIdle.
type Controller struct {
	client   *Client
	view     View
	progress *Presenter
	history  *History

	mu    sync.Mutex
	state State
}

// NewController wires a controller to its collaborators. history may be nil.
func NewController(client *Client, view View, history *History) *Controller {
	return &Controller{
		client:   client,
		view:     view,
		progress: NewPresenter(view),
		history:  history,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the presenter's last value.
func (c *Controller) Progress() Progress {
	return c.progress.Current()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Submit processes rawURL. The returned error is also what the view shows;
// callers that only care about the UI may ignore it. Only one submission
// runs at a time; State reports Success or Error while the outcome is being
// rendered and Idle once Submit returns.
func (c *Controller) Submit(ctx context.Context, rawURL string) (*DownloadResponse, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.client.logger.Printf("Rejecting submission while a request is in flight")
		return nil, ErrRequestInFlight
	}
	c.state = StateValidating
	c.mu.Unlock()
	defer c.setState(StateIdle)

	videoURL := strings.TrimSpace(rawURL)
	if videoURL == "" {
		c.setState(StateError)
		c.view.SetStatus(StatusError, MsgInvalidURL)
		return nil, ErrEmptyURL
	}

	c.setState(StateInFlight)
	c.view.SetStatus(StatusNone, "")
	c.view.ClearResult()
	c.view.ShowProgress(true)
	c.progress.Reset()
	c.progress.Start()

	result, err := c.fetch(ctx, videoURL)
	if err != nil {
		c.setState(StateError)
		c.progress.Fail()
		c.view.SetStatus(StatusError, errorMessage(err))
		c.client.logger.Printf("Download request for %s failed: %v", videoURL, err)
		return nil, err
	}

	// The bar reaches 100% before anything else of the outcome is drawn.
	c.setState(StateSuccess)
	c.progress.Ready()
	c.view.ShowLink(Link{
		URL:    result.DownloadURL,
		Label:  "Download " + result.Title,
		Notice: ExpiryNotice,
	})
	if c.history != nil {
		c.history.Append(result.Title)
	}
	c.view.SetStatus(StatusSuccess, MsgSuccess)
	return result, nil
}

func (c *Controller) fetch(ctx context.Context, videoURL string) (*DownloadResponse, error) {
	resp, err := c.client.Do(ctx, DownloadPath, RequestOptions{
		Method: http.MethodPost,
		Body:   DownloadRequest{URL: videoURL},
	})
	if err != nil {
		return nil, err
	}
	if err := apiError(resp); err != nil {
		return nil, err
	}
	var result DownloadResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	if result.DownloadURL == "" || result.Title == "" {
		return nil, fmt.Errorf("%w: missing download_url or title", ErrMalformedResponse)
	}
	return &result, nil
}

// errorMessage picks the status text for a failed request: the server's own
// message when it sent one, otherwise a generic fallback.
func errorMessage(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return MsgDownloadFailed
	}
	return MsgGenericError
}
