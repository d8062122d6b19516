package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {

	// 'standard' middleware used for every request
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders)

	// middleware specific to our dynamic application routes
	dynamicMiddleware := alice.New(app.session.Enable, noSurf, app.authenticate)

	mux := pat.New()
	mux.Get("/", dynamicMiddleware.ThenFunc(app.home))
	mux.Get("/dashboard", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.dashboard))

	mux.Get("/product/new", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.createProductForm))
	mux.Post("/product/new", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.createProduct))
	mux.Get("/product/:id/edit", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.editProductForm))
	mux.Post("/product/:id/edit", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.updateProduct))
	mux.Post("/product/:id/delete", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.deleteProduct))

	mux.Get("/user/signup", dynamicMiddleware.ThenFunc(app.signupUserForm))
	mux.Post("/user/signup", dynamicMiddleware.ThenFunc(app.signupUser))
	mux.Get("/user/signin", dynamicMiddleware.ThenFunc(app.signinUserForm))
	mux.Post("/user/signin", dynamicMiddleware.ThenFunc(app.signinUser))
	mux.Post("/user/logout", dynamicMiddleware.Append(app.requireAuthentication).ThenFunc(app.logoutUser))

	mux.Get("/ping", http.HandlerFunc(ping))

	fileServer := http.FileServer(http.Dir("./ui/static/"))
	mux.Get("/static/", http.StripPrefix("/static", fileServer))

	// standardMiddleware ↔ servemux ↔ dynamicMiddleware ↔ app handler
	return standardMiddleware.Then(mux)
}
