package vidget

import "sync"

// ProgressState names the milestone a download request has reached.
type ProgressState int

const (
	// ProgressStateIdle is the state after a reset, before the request is sent.
	ProgressStateIdle ProgressState = iota
	// ProgressStateStarted indicates the request has been sent to the backend.
	ProgressStateStarted
	// ProgressStateReady indicates the backend returned a download link.
	ProgressStateReady
	// ProgressStateFailed indicates the request ended in an error.
	ProgressStateFailed
)

// Status texts shown next to the progress bar.
const (
	StatusInitializing = "Initializing..."
	StatusReady        = "Download ready!"
	StatusFailed       = "Error occurred"
)

// Progress is what the progress bar displays.
type Progress struct {
	Percent int
	Status  string
	State   ProgressState
}

// Presenter drives a View's progress bar through fixed milestones tied to
// the real request: 10% when sent, 100% when the link is ready, 0% on
// failure. Percent is always kept within [0, 100].
type Presenter struct {
	view View

	mu      sync.Mutex
	current Progress
}

// NewPresenter returns a presenter rendering into v.
func NewPresenter(v View) *Presenter {
	return &Presenter{view: v, current: Progress{Status: StatusInitializing}}
}

// Reset puts the bar back to 0% before a new request.
func (p *Presenter) Reset() {
	p.update(Progress{Percent: 0, Status: StatusInitializing, State: ProgressStateIdle})
}

// Start marks the request as sent.
func (p *Presenter) Start() {
	p.update(Progress{Percent: 10, Status: StatusInitializing, State: ProgressStateStarted})
}

// Ready marks the download link as available.
func (p *Presenter) Ready() {
	p.update(Progress{Percent: 100, Status: StatusReady, State: ProgressStateReady})
}

// Fail abandons the request's progress.
func (p *Presenter) Fail() {
	p.update(Progress{Percent: 0, Status: StatusFailed, State: ProgressStateFailed})
}

// Set shows an arbitrary percentage, clamped to [0, 100], keeping the
// current milestone.
func (p *Presenter) Set(percent int, status string) {
	p.update(Progress{Percent: percent, Status: status, State: p.Current().State})
}

// Current returns the last value written.
func (p *Presenter) Current() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Presenter) update(pr Progress) {
	pr.Percent = max(0, min(100, pr.Percent))
	p.mu.Lock()
	p.current = pr
	p.mu.Unlock()
	if p.view != nil {
		p.view.SetProgress(pr)
	}
}

// TransferProgress reports bytes written while SaveFile streams a file.
// TotalSize is -1 when the server did not announce a length.
type TransferProgress struct {
	Filepath    string
	TotalSize   int64
	CurrentSize int64
	Done        bool
}
