package vidget

import (
	"encoding/json"
	"io"
	"log"
	"time"
)

const (
	// HistoryKey is the storage key holding the JSON-encoded history.
	HistoryKey = "downloadHistory"
	// MaxHistoryEntries caps the stored history; older entries are dropped.
	MaxHistoryEntries = 10
	// NoHistoryText is shown when the history is empty.
	NoHistoryText = "No download history yet"
	// HistoryDateLayout formats entry dates for display.
	HistoryDateLayout = "Jan 2, 2006, 3:04:05 PM"
)

// HistoryEntry records one successful download.
type HistoryEntry struct {
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// History is the capped, most-recent-first list of past downloads. Storage
// problems are logged and otherwise ignored.
type History struct {
	store  Storage
	view   View
	logger *log.Logger
	now    func() time.Time
}

// NewHistory returns a history kept in store and rendered into view. A nil
// logger discards messages.
func NewHistory(store Storage, view View, logger *log.Logger) *History {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &History{store: store, view: view, logger: logger, now: time.Now}
}

// Entries returns the stored entries, newest first. A missing or unreadable
// record yields an empty list.
func (h *History) Entries() []HistoryEntry {
	raw, ok, err := h.store.Get(HistoryKey)
	if err != nil {
		h.logger.Printf("Error loading history: %v", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		h.logger.Printf("Discarding unreadable history: %v", err)
		return nil
	}
	if len(entries) > MaxHistoryEntries {
		entries = entries[:MaxHistoryEntries]
	}
	return entries
}

// Append records title as the newest entry and re-renders.
func (h *History) Append(title string) {
	entries := h.Entries()
	entries = append([]HistoryEntry{{Title: title, Date: h.now().UTC()}}, entries...)
	if len(entries) > MaxHistoryEntries {
		entries = entries[:MaxHistoryEntries]
	}
	data, err := json.Marshal(entries)
	if err != nil {
		h.logger.Printf("Error encoding history: %v", err)
	} else if err := h.store.Set(HistoryKey, string(data)); err != nil {
		h.logger.Printf("Error saving to history: %v", err)
	}
	h.Render()
}

// Clear removes all history and re-renders.
func (h *History) Clear() {
	if err := h.store.Delete(HistoryKey); err != nil {
		h.logger.Printf("Error clearing history: %v", err)
	}
	h.Render()
}

// Render pushes the current history to the view. An empty slice means the
// view should show NoHistoryText.
func (h *History) Render() {
	if h.view == nil {
		return
	}
	entries := h.Entries()
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{Title: e.Title, Date: FormatHistoryDate(e.Date)})
	}
	h.view.RenderHistory(rows)
}

// FormatHistoryDate renders t in the local time zone.
func FormatHistoryDate(t time.Time) string {
	return t.Local().Format(HistoryDateLayout)
}
