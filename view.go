package vidget

import (
	"fmt"
	"strings"
	"sync"
)

// StatusKind selects how a status message is styled.
type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusSuccess
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return ""
	}
}

// Link is a rendered download button.
type Link struct {
	URL    string
	Label  string
	Notice string
}

// HistoryRow is one line of the history panel. Date is already formatted for
// display.
type HistoryRow struct {
	Title string
	Date  string
}

// View is everything the components render into. Implementations stand in
// for the page: the CLI renders to a terminal, tests use ViewModel.
type View interface {
	SetStatus(kind StatusKind, text string)
	ClearResult()
	ShowProgress(visible bool)
	SetProgress(p Progress)
	ShowLink(link Link)
	RenderHistory(rows []HistoryRow)
}

// ViewModel is an in-memory View. It records the latest state of every
// element and can render them as escaped HTML fragments.
type ViewModel struct {
	mu              sync.Mutex
	status          string
	statusKind      StatusKind
	progress        Progress
	progressVisible bool
	link            *Link
	history         []HistoryRow
}

// NewViewModel returns an empty view model.
func NewViewModel() *ViewModel {
	return &ViewModel{}
}

func (m *ViewModel) SetStatus(kind StatusKind, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusKind = kind
	m.status = text
}

func (m *ViewModel) ClearResult() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = nil
}

func (m *ViewModel) ShowProgress(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressVisible = visible
}

func (m *ViewModel) SetProgress(p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = p
}

func (m *ViewModel) ShowLink(link Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = &link
}

func (m *ViewModel) RenderHistory(rows []HistoryRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append([]HistoryRow(nil), rows...)
}

// Status returns the current status text and its kind.
func (m *ViewModel) Status() (StatusKind, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusKind, m.status
}

// Progress returns the progress bar state and whether it is shown.
func (m *ViewModel) Progress() (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress, m.progressVisible
}

// Link returns the rendered download link, if any.
func (m *ViewModel) Link() (Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == nil {
		return Link{}, false
	}
	return *m.link, true
}

// History returns the rows last rendered in the history panel.
func (m *ViewModel) History() []HistoryRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryRow(nil), m.history...)
}

// StatusHTML renders the status banner.
func (m *ViewModel) StatusHTML() string {
	kind, text := m.Status()
	if text == "" {
		return ""
	}
	return fmt.Sprintf(`<div class="status %s">%s</div>`, kind, EscapeHTML(text))
}

// LinkHTML renders the download button and its expiration notice.
func (m *ViewModel) LinkHTML() string {
	link, ok := m.Link()
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<a href="%s" class="download-button" target="_blank">%s</a>`, EscapeHTML(link.URL), EscapeHTML(link.Label))
	if link.Notice != "" {
		fmt.Fprintf(&b, `<p class="expiration-warning">%s</p>`, EscapeHTML(link.Notice))
	}
	return b.String()
}

// HistoryHTML renders the history panel.
func (m *ViewModel) HistoryHTML() string {
	return RenderHistoryHTML(m.History())
}

// RenderHistoryHTML renders rows as a history list, or the placeholder when
// there are none.
func RenderHistoryHTML(rows []HistoryRow) string {
	if len(rows) == 0 {
		return `<p class="no-history">` + EscapeHTML(NoHistoryText) + `</p>`
	}
	var b strings.Builder
	b.WriteString(`<ul class="history-list">`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<li class="history-item"><span class="history-title">%s</span><span class="history-date">%s</span></li>`,
			EscapeHTML(r.Title), EscapeHTML(r.Date))
	}
	b.WriteString(`</ul>`)
	return b.String()
}
