package vidget

import (
	"encoding/json"
	"net/http"
)

// SessionKey is the storage key holding the backend's session cookies.
const SessionKey = "session"

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session carries the backend's login cookie across process runs, the way a
// browser keeps it across page loads. Every operation is best-effort.
type Session struct {
	client *Client
	store  Storage
}

// NewSession ties client's cookie jar to store.
func NewSession(client *Client, store Storage) *Session {
	return &Session{client: client, store: store}
}

// Load restores saved cookies into the client's jar.
func (s *Session) Load() {
	raw, ok, err := s.store.Get(SessionKey)
	if err != nil {
		s.client.logger.Printf("Error loading session: %v", err)
		return
	}
	if !ok {
		return
	}
	var saved []storedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		s.client.logger.Printf("Discarding unreadable session: %v", err)
		return
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	s.client.client.Jar.SetCookies(s.client.baseURL, cookies)
	s.client.logger.Printf("Restored %d session cookie(s) for %s", len(cookies), s.client.baseURL.Host)
}

// Save persists the jar's cookies for the service.
func (s *Session) Save() {
	cookies := s.client.client.Jar.Cookies(s.client.baseURL)
	saved := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		s.client.logger.Printf("Error encoding session: %v", err)
		return
	}
	if err := s.store.Set(SessionKey, string(data)); err != nil {
		s.client.logger.Printf("Error saving session: %v", err)
	}
}

// Forget drops the saved cookies and empties the jar. Jars do not report a
// cookie's path, so the whole jar is replaced rather than expiring cookies
// one name at a time.
func (s *Session) Forget() {
	if err := s.client.clearCookies(); err != nil {
		s.client.logger.Printf("Error clearing cookies: %v", err)
	}
	if err := s.store.Delete(SessionKey); err != nil {
		s.client.logger.Printf("Error clearing session: %v", err)
	}
}
