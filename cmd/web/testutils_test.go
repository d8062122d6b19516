package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/denver-code/fixly-frontend/internal/fixly"
	"github.com/denver-code/fixly-frontend/internal/product"
	"github.com/golangcollege/sessions"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Capture the CSRF token value from the HTML page
var csrfTokenRX = regexp.MustCompile(`<input type='hidden' name='csrf_token' value='(.+)'>`)

func extractCSRFToken(t *testing.T, body []byte) string {
	// extract the token from the HTML body
	matches := csrfTokenRX.FindSubmatch(body)
	// expecting an array with at least two entries (matched pattern & captured data)
	if len(matches) < 2 {
		t.Fatal("No csrf token found in body")
	}

	// unescape the rendered and html escaped base64 encoded string value
	return html.UnescapeString(string(matches[1]))
}

const (
	testUsername = "gopher"
	testPassword = "validPa$$word"
	testToken    = "c2Vzc2lvbi10b2tlbi1ncjEtb3BhcXVl"

	// seeded product ids
	imagesProductID    = "72f8b983-3eb4-48db-9ed0-e45cc6bd716b"
	soldBelowProductID = "11f8b983-3eb4-48db-9ed0-e45cc6bd716b"
	soldAboveProductID = "22f8b983-3eb4-48db-9ed0-e45cc6bd716b"
	bareProductID      = "33f8b983-3eb4-48db-9ed0-e45cc6bd716b"
)

// fakeBackend is an in-memory stand-in for the fixly REST API. It checks the
// raw-token Authorization convention on every private route and records the
// mutations the frontend sends.
type fakeBackend struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]string
	products    map[string]product.Product
	order       []string
	revoked     bool
	deleteCalls int
	updates     map[string]map[string]json.RawMessage
	creates     []map[string]json.RawMessage
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		users:    map[string]string{testUsername: testPassword},
		products: map[string]product.Product{},
		updates:  map[string]map[string]json.RawMessage{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/public/auth/signup", b.signup)
	mux.HandleFunc("POST /api/public/auth/signin", b.signin)
	mux.HandleFunc("GET /api/private/profile/", b.profile)
	mux.HandleFunc("GET /api/private/products/", b.listProducts)
	mux.HandleFunc("POST /api/private/products/", b.createProduct)
	mux.HandleFunc("GET /api/private/products/{id}", b.getProduct)
	mux.HandleFunc("PUT /api/private/products/{id}", b.updateProduct)
	mux.HandleFunc("DELETE /api/private/products/{id}", b.deleteProduct)
	mux.HandleFunc("GET /images/{name}", b.image)

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	b.seed()

	return b
}

func (b *fakeBackend) seed() {
	num := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	sold := func(s string) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
	}

	seeded := []product.Product{
		{
			ID:          imagesProductID,
			Title:       "McDonalds Toys",
			Description: "Vintage happy meal set",
			BoughtPrice: num("12.50"),
			TargetPrice: num("40"),
			Images: []product.Image{
				{IsMain: false, URL: b.URL + "/images/side.png"},
				{IsMain: true, URL: b.URL + "/images/main.png"},
			},
		},
		{
			ID:          soldBelowProductID,
			Title:       "Broken Walkman",
			Description: "Sold for parts",
			BoughtPrice: num("30"),
			TargetPrice: num("100"),
			SoldPrice:   sold("80"),
		},
		{
			ID:          soldAboveProductID,
			Title:       "Retro Console",
			Description: "Refurbished and flipped",
			BoughtPrice: num("55"),
			TargetPrice: num("100"),
			SoldPrice:   sold("120"),
		},
		{
			ID:          bareProductID,
			Title:       "Mystery Box",
			Description: "No photos yet",
			BoughtPrice: num("5"),
			TargetPrice: num("25"),
		},
	}
	for _, p := range seeded {
		b.products[p.ID] = p
		b.order = append(b.order, p.ID)
	}
}

// revokeSessions invalidates every issued token; private routes reject until
// the next sign-in.
func (b *fakeBackend) revokeSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = true
}

func (b *fakeBackend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	// raw token value, no scheme word
	return !b.revoked && r.Header.Get("Authorization") == testToken
}

func (b *fakeBackend) signup(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.users[creds.Username] = creds.Password
	b.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, `{"id":"u-2"}`)
}

func (b *fakeBackend) signin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	password, ok := b.users[creds.Username]
	b.revoked = false
	b.mu.Unlock()

	if !ok || password != creds.Password || creds.Password == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	fmt.Fprintf(w, `{"token":%q}`, testToken)
}

func (b *fakeBackend) profile(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fmt.Fprintf(w, `{"id":"u-1","username":%q}`, testUsername)
}

func (b *fakeBackend) listProducts(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	ps := make([]product.Product, 0, len(b.order))
	for _, id := range b.order {
		ps = append(ps, b.products[id])
	}
	b.mu.Unlock()

	json.NewEncoder(w).Encode(ps)
}

func (b *fakeBackend) createProduct(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p := product.Product{ID: uuid.NewString()}
	json.Unmarshal(fields["title"], &p.Title)
	json.Unmarshal(fields["description"], &p.Description)
	json.Unmarshal(fields["price"], &p.BoughtPrice)
	json.Unmarshal(fields["target_price"], &p.TargetPrice)

	b.mu.Lock()
	b.creates = append(b.creates, fields)
	b.products[p.ID] = p
	b.order = append(b.order, p.ID)
	b.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

func (b *fakeBackend) getProduct(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	p, ok := b.products[r.PathValue("id")]
	b.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (b *fakeBackend) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.products[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.updates[id] = fields

	// partial-field patch semantics: only supplied fields change
	var patch fixly.ProductUpdate
	raw, _ := json.Marshal(fields)
	json.Unmarshal(raw, &patch)
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.BoughtPrice != nil {
		p.BoughtPrice = *patch.BoughtPrice
	}
	if patch.TargetPrice != nil {
		p.TargetPrice = *patch.TargetPrice
	}
	if patch.SoldPrice != nil {
		p.SoldPrice = decimal.NullDecimal{Decimal: *patch.SoldPrice, Valid: true}
	}
	b.products[id] = p

	json.NewEncoder(w).Encode(p)
}

func (b *fakeBackend) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	b.deleteCalls++
	if _, ok := b.products[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(b.products, id)
	for i, pid := range b.order {
		if pid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func imageBytes(name string) []byte {
	return []byte("image-bytes-" + name)
}

func (b *fakeBackend) image(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(imageBytes(r.PathValue("name")))
}

func (b *fakeBackend) deleteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteCalls
}

func (b *fakeBackend) lastUpdate(id string) map[string]json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updates[id]
}

func (b *fakeBackend) lastCreate() map[string]json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.creates) == 0 {
		return nil
	}
	return b.creates[len(b.creates)-1]
}

// newTestApplication creates an application struct with mock loggers and an
// in-memory backend.
func newTestApplication(t *testing.T) (*application, *fakeBackend) {
	// Initialize template cache.
	templateCache, err := newTemplateCache("./../../ui/html/")
	if err != nil {
		t.Fatal(err)
	}

	backend := newFakeBackend(t)

	// Session manager instance that mirrors production settings.
	// Sample generation of secret bytes 'openssl rand -base64 32'.
	session := sessions.New([]byte("zBtjT1J8wWrvUCuEZf+YbBa41nKYlCKiNLeS5AGdmiQ="))
	// sessions expire after 12 hours
	session.Lifetime = 12 * time.Hour
	// Set the secure flag on session cookies.
	session.Secure = true
	// Mitigate cross site request forgry (CSRF).
	session.SameSite = http.SameSiteStrictMode

	app := application{
		debug:           true,
		errorLog:        log.New(io.Discard, "", 0),
		fixly:           fixly.NewClient(backend.URL, nil),
		imageFetchLimit: 1,
		infoLog:         log.New(io.Discard, "", 0),
		session:         session,
		shutdown:        make(chan os.Signal, 1),
		templateCache:   templateCache,
		useTLS:          true,
	}

	return &app, backend
}

type testServer struct {
	*httptest.Server
}

// newTestServer initalizes and returns a new instance of testServer
func newTestServer(t *testing.T, h http.Handler) *testServer {

	// spinup a https server for the duration of the test
	ts := httptest.NewUnstartedServer(h)
	ts.EnableHTTP2 = true
	ts.StartTLS()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	// add the cookie jar to the client, so that response cookies are stored
	// and then sent with subsequent requests
	ts.Client().Jar = jar

	// disabling the default behaviour for redirect-following for the client
	// returning the error forces it to immediately return the received response
	ts.Client().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &testServer{ts}
}

// get performs a GET request to a given url path on the test server
func (ts *testServer) get(t *testing.T, urlPath string) (int, http.Header, []byte) {
	// make a GET request against the test server
	rs, err := ts.Client().Get(ts.URL + urlPath)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()

	body, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}

	return rs.StatusCode, rs.Header, body
}

// postForm method for sending POST requests to the test server
func (ts *testServer) postForm(t *testing.T, urlPath string, form url.Values) (int, http.Header, []byte) {
	// make a POST request against the test server
	req, err := http.NewRequest(http.MethodPost, ts.URL+urlPath, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// browsers send this fetch metadata header on same-origin form posts;
	// nosurf rejects unsafe requests that carry no origin information
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	rs, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()

	body, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}

	return rs.StatusCode, rs.Header, body
}

// signin logs the test user in, initializing the session cookie in the jar.
func (ts *testServer) signin(t *testing.T) {
	_, _, body := ts.get(t, "/user/signin")
	csrfToken := extractCSRFToken(t, body)

	form := url.Values{}
	form.Add("username", testUsername)
	form.Add("password", testPassword)
	form.Add("csrf_token", csrfToken)

	code, _, _ := ts.postForm(t, "/user/signin", form)
	if code != http.StatusSeeOther {
		t.Fatalf("signin: want %d; got %d", http.StatusSeeOther, code)
	}
}

// csrfToken fetches a page carrying the CSRF input and extracts the token.
func (ts *testServer) csrfToken(t *testing.T, urlPath string) string {
	_, _, body := ts.get(t, urlPath)
	return extractCSRFToken(t, body)
}
