package vidget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Page identifies where the user should be sent after an auth decision.
type Page string

const (
	PageLogin Page = "/login.html"
	PageRoot  Page = "/"
)

// Backend auth endpoints.
const (
	CheckAuthPath = "/api/check-auth"
	LoginPath     = "/api/login"
	RegisterPath  = "/api/register"
	LogoutPath    = "/api/logout"
)

const (
	MsgLoginFailed    = "Login failed. Please try again."
	MsgRegisterFailed = "Registration failed. Please try again."
)

// ErrNotAuthenticated is returned by Check when the user has to log in.
var ErrNotAuthenticated = errors.New("not authenticated")

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(page Page)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Page)

func (f NavigatorFunc) Navigate(p Page) { f(p) }

// Credentials is the body of login and register requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthGate keeps unauthenticated users on the login page and runs the
// login, register and logout forms.
type AuthGate struct {
	client  *Client
	view    View
	nav     Navigator
	session *Session
}

// NewAuthGate returns a gate. session may be nil when cookies need not
// outlive the process.
func NewAuthGate(client *Client, view View, nav Navigator, session *Session) *AuthGate {
	return &AuthGate{client: client, view: view, nav: nav, session: session}
}

// Check verifies the session for a load of page current. Anything short of
// an explicit "authenticated" answer sends the user to the login page.
func (a *AuthGate) Check(ctx context.Context, current Page) error {
	if current == PageLogin {
		return nil
	}
	resp, err := a.client.Do(ctx, CheckAuthPath, RequestOptions{Method: http.MethodGet})
	if err == nil {
		err = apiError(resp)
	}
	var status struct {
		Authenticated bool `json:"authenticated"`
	}
	if err == nil {
		err = resp.DecodeJSON(&status)
	}
	if err != nil {
		a.client.logger.Printf("Auth check failed: %v", err)
		a.nav.Navigate(PageLogin)
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if !status.Authenticated {
		a.nav.Navigate(PageLogin)
		return ErrNotAuthenticated
	}
	return nil
}

// Login submits the login form.
func (a *AuthGate) Login(ctx context.Context, username, password string) error {
	return a.submit(ctx, LoginPath, Credentials{Username: username, Password: password}, MsgLoginFailed)
}

// Register submits the registration form.
func (a *AuthGate) Register(ctx context.Context, username, password string) error {
	return a.submit(ctx, RegisterPath, Credentials{Username: username, Password: password}, MsgRegisterFailed)
}

func (a *AuthGate) submit(ctx context.Context, path string, creds Credentials, fallback string) error {
	resp, err := a.client.Do(ctx, path, RequestOptions{Method: http.MethodPost, Body: creds})
	if err != nil {
		a.view.SetStatus(StatusError, fallback)
		return err
	}
	if err := apiError(resp); err != nil {
		msg := fallback
		var se *ServerError
		if errors.As(err, &se) && se.Message != "" {
			msg = se.Message
		}
		a.view.SetStatus(StatusError, msg)
		return err
	}
	if a.session != nil {
		a.session.Save()
	}
	a.nav.Navigate(PageRoot)
	return nil
}

// Logout ends the session. On failure the error is logged and returned; the
// view is left as it was.
func (a *AuthGate) Logout(ctx context.Context) error {
	resp, err := a.client.Do(ctx, LogoutPath, RequestOptions{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err == nil {
		err = apiError(resp)
	}
	if err != nil {
		a.client.logger.Printf("Logout failed: %v", err)
		return fmt.Errorf("logout failed: %w", err)
	}
	if a.session != nil {
		a.session.Forget()
	}
	a.nav.Navigate(PageLogin)
	return nil
}
