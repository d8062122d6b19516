package main

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/justinas/nosurf"
)

func newClient(timeout time.Duration) *http.Client {
	var client http.Client
	t := http.DefaultTransport.(*http.Transport)
	client.Transport = t.Clone()
	client.Timeout = timeout
	return &client
}

func (app *application) serverError(w http.ResponseWriter, err error) {
	trace := fmt.Sprintf("%s\n%s", err.Error(), debug.Stack())
	// go one step back in the stack trace to get the file name and line number
	app.errorLog.Output(2, trace)

	// when running in debug mode,
	// write detailed errors and stack traces to the http response
	if app.debug {
		http.Error(w, trace, http.StatusInternalServerError)
		return
	}

	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

	app.SignalShutdown()
}

func (app *application) clientError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func (app *application) addDefaultData(td *templateData, r *http.Request) *templateData {
	if td == nil {
		td = &templateData{}
	}
	td.CurrentYear = time.Now().Year()
	td.Version = build

	// add CSRF token to the template data
	td.CSRFToken = nosurf.Token(r)

	// retrieve the value for the flash key and delete the key in one step
	// add flash message to the template data
	td.Flash = app.session.PopString(r, "flash")

	// add authentication status to the template data
	td.IsAuthenticated = app.isAuthenticated(r)
	td.Username = app.session.GetString(r, sessionKeyUsername)

	return td
}

// isAuthenticated checks if the request is from an authenticated user
func (app *application) isAuthenticated(r *http.Request) bool {
	isAuthenticated, ok := r.Context().Value(contextKeyIsAuthenticated).(bool)
	if !ok {
		// key not found in ctx, or value was not a boolean
		return false
	}
	return isAuthenticated
}

// token returns the session credential of the current request.
func (app *application) token(r *http.Request) string {
	return app.session.GetString(r, sessionKeyAuthToken)
}

// openSession stores a fresh credential. The token is opaque to this client;
// the unverified claims peek only feeds the navbar username and a token that
// does not parse as a JWT is still accepted.
func (app *application) openSession(r *http.Request, token string) {
	app.session.Put(r, sessionKeyAuthToken, token)
	app.session.Put(r, sessionKeyAuthVerified, true)

	if subject := tokenSubject(token); subject != "" {
		app.session.Put(r, sessionKeyUsername, subject)
	}
}

// endSession drops the credential and everything derived from it.
func (app *application) endSession(r *http.Request) {
	app.session.Remove(r, sessionKeyAuthToken)
	app.session.Remove(r, sessionKeyAuthVerified)
	app.session.Remove(r, sessionKeyUsername)
}

// viewMode resolves the dashboard rendering mode: an explicit query
// parameter wins and gets persisted, then the cookie. Unset or unrecognized
// values fall back to the table view.
func (app *application) viewMode(w http.ResponseWriter, r *http.Request) string {
	mode := r.URL.Query().Get("view")
	if mode == viewModeTable || mode == viewModeCards {
		http.SetCookie(w, &http.Cookie{
			Name:     viewModeCookie,
			Value:    mode,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			SameSite: http.SameSiteStrictMode,
		})
		return mode
	}

	if c, err := r.Cookie(viewModeCookie); err == nil {
		if c.Value == viewModeTable || c.Value == viewModeCards {
			return c.Value
		}
	}

	return viewModeTable
}

func (app *application) render(w http.ResponseWriter, r *http.Request, name string, data *templateData) {
	ts, ok := app.templateCache[name]
	if !ok {
		app.serverError(w, fmt.Errorf("the template %s does not exist", name))
		return
	}

	// stage 1: write template into buffer
	buf := new(bytes.Buffer)
	err := ts.Execute(buf, app.addDefaultData(data, r))
	if err != nil {
		app.serverError(w, err)
		return
	}

	// stage 2: write rendered content
	buf.WriteTo(w)
}
