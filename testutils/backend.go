package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the cookie name the mock backend issues at login.
const SessionCookie = "session"

// DownloadFunc decides the mock's answer to POST /download. body is encoded
// as JSON unless it is a string, which is written verbatim.
type DownloadFunc func(videoURL string) (status int, body any)

type servedFile struct {
	contentType string
	data        []byte
}

// Backend is an in-process stand-in for the download service: session-cookie
// auth, a configurable /download endpoint and static files for the links it
// hands out.
type Backend struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[string][]byte // bcrypt hashes
	sessions   map[string]string
	hits       map[string]int
	download   DownloadFunc
	files      map[string]servedFile
	failLogout bool
}

// NewBackend starts a mock backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		users:    make(map[string][]byte),
		sessions: make(map[string]string),
		hits:     make(map[string]int),
		files:    make(map[string]servedFile),
	}

	r := mux.NewRouter()
	r.Use(b.count)
	r.HandleFunc("/download", b.handleDownload).Methods(http.MethodPost)
	r.HandleFunc("/api/check-auth", b.handleCheckAuth).Methods(http.MethodGet)
	r.HandleFunc("/api/login", b.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/register", b.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", b.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/files/{name}", b.handleFile).Methods(http.MethodGet)

	b.Server = httptest.NewServer(r)
	b.download = func(string) (int, any) {
		return http.StatusOK, map[string]string{"download_url": b.URL + "/files/video.mp4", "title": "Video"}
	}
	t.Cleanup(b.Close)
	return b
}

// AddUser registers a known account.
func (b *Backend) AddUser(username, password string) {
	hash := hashPassword(password)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[username] = hash
}

// hashPassword hashes at bcrypt.MinCost.
func hashPassword(password string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}

// SetDownload replaces the /download behaviour.
func (b *Backend) SetDownload(fn DownloadFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.download = fn
}

// AddFile serves data at /files/name and returns its URL.
func (b *Backend) AddFile(name, contentType string, data []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = servedFile{contentType: contentType, data: data}
	return b.URL + "/files/" + name
}

// FailLogout makes /api/logout answer 500.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLogout = fail
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// Sessions returns the number of live sessions.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (b *Backend) currentUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.sessions[c.Value]
	return user, ok
}

func (b *Backend) startSession(w http.ResponseWriter, username string) {
	token := uuid.NewString()
	b.mu.Lock()
	b.sessions[token] = username
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No URL provided"})
		return
	}
	b.mu.Lock()
	fn := b.download
	b.mu.Unlock()

	status, body := fn(req.URL)
	if raw, ok := body.(string); ok {
		w.WriteHeader(status)
		fmt.Fprint(w, raw)
		return
	}
	writeJSON(w, status, body)
}

func (b *Backend) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := b.currentUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": user})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return "", "", false
	}
	return creds.Username, creds.Password, true
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	username, password, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	stored, known := b.users[username]
	b.mu.Unlock()
	if !known || bcrypt.CompareHashAndPassword(stored, []byte(password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
		return
	}
	b.startSession(w, username)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged in successfully"})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	username, password, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	hash := hashPassword(password)
	b.mu.Lock()
	_, exists := b.users[username]
	if !exists {
		b.users[username] = hash
	}
	b.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username already exists"})
		return
	}
	b.startSession(w, username)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Registration successful"})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail := b.failLogout
	b.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout unavailable"})
		return
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (b *Backend) handleFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	b.mu.Lock()
	f, ok := b.files[name]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(f.data)))
	_, _ = w.Write(f.data)
}
