package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denver-code/fixly-frontend/internal/fixly"
	"github.com/denver-code/fixly-frontend/tracer"
	"github.com/golangcollege/sessions"
	"github.com/pkg/errors"
	"github.com/tullo/conf"
)

// build is the git version of this application. It is set using build flags in the makefile.
var build = "develop"

// the key must be unexported type to avoid collisions
type contextKey string

const contextKeyIsAuthenticated = contextKey("isAuthenticated")

// Session keys of the persisted credential and its cached validation state.
// The token is opaque; authVerified records that the profile endpoint has
// accepted it once during this session.
const (
	sessionKeyAuthToken    = "authToken"
	sessionKeyAuthVerified = "authVerified"
	sessionKeyUsername     = "username"
	sessionKeyRedirectPath = "redirectPathAfterLogin"
)

// viewModeCookie persists the dashboard rendering mode across visits,
// independent of the session cookie.
const viewModeCookie = "view_mode"

type application struct {
	debug           bool
	errorLog        *log.Logger
	fixly           *fixly.Client
	imageFetchLimit int
	infoLog         *log.Logger
	session         *sessions.Session
	shutdown        chan os.Signal
	templateCache   map[string]*template.Template
	useTLS          bool
}

// SignalShutdown is used to gracefully shutdown the app when an integrity
// issue is identified.
func (a *application) SignalShutdown() {
	a.shutdown <- syscall.SIGTERM
}

func main() {
	if err := run(); err != nil {
		log.Printf("error: %s", err)
		os.Exit(1)
	}
}

func run() error {

	// =========================================================================
	// Configuration

	// session secret (should be 32 bytes long) is used to encrypt and authenticate session cookies
	// e.g. 'openssl rand -base64 32'

	var cfg struct {
		conf.Version
		Web struct {
			Host            string        `conf:"default::4200"`
			DebugMode       bool          `conf:"default:false"`
			EnableTLS       bool          `conf:"default:false"`
			SessionSecret   string        `conf:"noprint,default:M+ZrbJjvTLvXOvihe+Rjlr/ccfGjmFReGtLcV7gSufg="`
			ImageFetchLimit int           `conf:"default:1"`
			IdleTimeout     time.Duration `conf:"default:1m"`
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:15s"`
			ShutdownTimeout time.Duration `conf:"default:5s"`
		}
		API struct {
			BaseURL string        `conf:"default:http://localhost:8000"`
			Timeout time.Duration `conf:"default:10s"`
		}
		Zipkin struct {
			Enable      bool   `conf:"default:false"`
			ReporterURI string `conf:"default:http://0.0.0.0:9411/api/v2/spans"`
		}
		Args conf.Args
	}
	cfg.Version.Version = build
	cfg.Version.Description = "fixly inventory frontend"

	if err := conf.Parse(os.Args[1:], "FIXLY", &cfg); err != nil {
		if err == conf.ErrHelpWanted {
			usage, err := conf.Usage("FIXLY", &cfg)
			if err != nil {
				return errors.Wrap(err, "generating usage")
			}
			fmt.Println(usage)
			return nil
		}
		return errors.Wrap(err, "error: parsing config")
	}

	if len(cfg.Web.SessionSecret) == 0 {
		return errors.New("session secret cannot be empty")
	}
	if cfg.Web.ImageFetchLimit < 1 {
		return errors.New("image fetch limit must be at least 1")
	}

	// =========================================================================
	// Start Web Application

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	infoLog.Printf("main: Started : Application initializing : version %q", build)
	defer infoLog.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return errors.Wrap(err, "generating config for output")
	}
	infoLog.Printf("main: Config :\n%v\n", out)

	// initialize template cache
	templateCache, err := newTemplateCache("./ui/html/")
	if err != nil {
		errorLog.Fatal(err)
	}

	// spans of outbound API calls get exported when zipkin is enabled
	if cfg.Zipkin.Enable {
		shutdownTracer, err := tracer.Init("fixly-frontend", cfg.Zipkin.ReporterURI, infoLog)
		if err != nil {
			return errors.Wrap(err, "initializing tracer")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				errorLog.Printf("main: tracer shutdown: %v", err)
			}
		}()
	}

	// sessions expire after 12 hours
	session := sessions.New([]byte(cfg.Web.SessionSecret))
	session.Lifetime = 12 * time.Hour
	// set the secure flag on session cookies and
	// serve all requests over https in production environment
	session.Secure = true
	session.SameSite = http.SameSiteStrictMode

	// make a channel to listen for an interrupt or terminate signal from the OS.
	// use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := &application{
		debug:           cfg.Web.DebugMode,
		errorLog:        errorLog,
		fixly:           fixly.NewClient(cfg.API.BaseURL, newClient(cfg.API.Timeout)),
		imageFetchLimit: cfg.Web.ImageFetchLimit,
		infoLog:         infoLog,
		session:         session,
		shutdown:        shutdown,
		templateCache:   templateCache,
		useTLS:          cfg.Web.EnableTLS,
	}

	// use Go's favored cipher suites (support for forward secrecy)
	// and elliptic curves that are performant under heavy loads
	tlsConfig := &tls.Config{
		PreferServerCipherSuites: true,
		CurvePreferences:         []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:         cfg.Web.Host,
		ErrorLog:     errorLog,
		Handler:      app.routes(),
		TLSConfig:    tlsConfig,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
	}

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// Start the application listening for requests.
	go func() {
		infoLog.Printf("Starting server on %s", cfg.Web.Host)
		if app.useTLS {
			serverErrors <- srv.ListenAndServeTLS("./tls/localhost/cert.pem", "./tls/localhost/key.pem")
			return
		}
		serverErrors <- srv.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")

	case sig := <-shutdown:
		infoLog.Printf("main : %v : Start shutdown", sig)

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Trigger graceful shutdown of the server, listeners.
		err := srv.Shutdown(ctx)
		if err != nil {
			infoLog.Printf("main : Graceful shutdown did not complete in %v : %v", cfg.Web.ShutdownTimeout, err)
			err = srv.Close()
		}

		// Log the status of this shutdown.
		switch {
		case sig == syscall.SIGSTOP:
			return errors.New("integrity issue caused shutdown")
		case err != nil:
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}

	return nil
}
