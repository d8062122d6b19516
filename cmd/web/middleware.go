package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/justinas/nosurf"
)

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")

		next.ServeHTTP(w, r)
	})
}

// noSurf uses a customized CSRF cookie with the Secure, Path and HttpOnly flags set
func noSurf(next http.Handler) http.Handler {
	csrfHandler := nosurf.New(next)
	csrfHandler.ExemptPaths("/ping")
	csrfHandler.SetBaseCookie(http.Cookie{
		Domain:   "",
		HttpOnly: true,
		MaxAge:   24 * 60 * 60, // 24 hours
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   true, // for transport over https
	})
	csrfHandler.SetFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	return csrfHandler
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.infoLog.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())

		next.ServeHTTP(w, r)
	})
}

// recoverPanic recovers the panic and logs the cause
func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// called last on the way up in the middleware chain while Go unwinds the stack
		defer func() {
			// check if there has been a panic or not
			if err := recover(); err != nil {
				// trigger the Go server to automatically close the current connection
				// after a response has been sent.
				w.Header().Set("Connection", "close")
				// format error with default textual representation
				app.serverError(w, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requireAuthentication redirects the unauthenticated user to the sign-in page
func (app *application) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !app.isAuthenticated(r) {
			// add the path the user is trying to access to session data
			app.session.Put(r, sessionKeyRedirectPath, r.URL.Path)
			http.Redirect(w, r, "/user/signin", http.StatusSeeOther)
			return
		}
		// pages that require authentication should not be stored in caches
		// (browser cache or other intermediary cache)
		w.Header().Add("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the session credential into the auth decision for
// this request. A token present in the session is not trusted until the
// profile endpoint has accepted it once; a rejected token is dropped so a
// stale credential sends the user back to sign-in instead of erroring.
// The decision is made inline before any handler runs, so no authorization
// check can happen while validation is still in flight.
func (app *application) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := app.session.GetString(r, sessionKeyAuthToken)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !app.session.GetBool(r, sessionKeyAuthVerified) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			u, err := app.fixly.Profile(ctx, token)
			if err != nil {
				app.infoLog.Printf("dropping stale credential: %v", err)
				app.endSession(r)
				next.ServeHTTP(w, r)
				return
			}
			app.session.Put(r, sessionKeyAuthVerified, true)
			if u.Username != "" {
				app.session.Put(r, sessionKeyUsername, u.Username)
			}
		}

		// request is coming from a validated session,
		// add key/value pair to the request context - to be used further down the chain
		ctx := context.WithValue(r.Context(), contextKeyIsAuthenticated, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
