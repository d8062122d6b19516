// Package fixly is the client for the remote fixly REST API. It owns the
// wire payloads of every remote operation; the bearer token is passed in
// per call so credential state stays with the caller's session.
package fixly

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/denver-code/fixly-frontend/internal/product"
	"github.com/denver-code/fixly-frontend/internal/user"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

func init() {
	// The backend speaks plain JSON numbers for prices.
	decimal.MarshalJSONWithoutQuotes = true
}

// Sentinel errors callers branch on. Everything else is a generic
// operation-named failure.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// maxImageBytes caps how much of an image body is buffered into a data URL.
const maxImageBytes = 10 << 20

// Credentials is the request payload of both auth endpoints.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewProduct is the creation payload. The backend names the bought price
// "price" on this endpoint only.
type NewProduct struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	TargetPrice decimal.Decimal `json:"target_price"`
}

// ProductUpdate is a partial patch; nil fields are omitted from the request
// body and left untouched server-side.
type ProductUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	BoughtPrice *decimal.Decimal `json:"bought_price,omitempty"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	SoldPrice   *decimal.Decimal `json:"sold_price,omitempty"`
}

// Client talks to the fixly REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client rooted at baseURL. A nil httpClient falls back
// to http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

var tracer = otel.Tracer("github.com/denver-code/fixly-frontend/internal/fixly")

// newRequest builds an outbound request carrying the credential and the
// trace context. The backend expects the raw token value in the
// Authorization header, without a scheme word.
func (c *Client) newRequest(ctx context.Context, method, url, token string, body interface{}) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

// do performs one remote operation: send, check status, decode. A nil out
// skips body decoding.
func (c *Client) do(ctx context.Context, name, method, url, token string, body, out interface{}) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	req, err := c.newRequest(ctx, method, url, token, body)
	if err != nil {
		span.SetStatus(codes.Error, "building request")
		return err
	}

	// Do will handle the context level timeout.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "sending request")
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		span.SetStatus(codes.Error, "unauthorized")
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode > 299:
		span.SetStatus(codes.Error, "unexpected status code")
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		return errors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.SetStatus(codes.Error, "decoding json")
			return errors.Wrap(err, "decoding json")
		}
	}

	return nil
}

// Signup registers a new account. The endpoint does not open a session.
func (c *Client) Signup(ctx context.Context, username, password string) error {
	url := fmt.Sprintf("%s/api/public/auth/signup", c.baseURL)
	err := c.do(ctx, "signup", http.MethodPost, url, "", Credentials{Username: username, Password: password}, nil)
	return errors.Wrap(err, "signup failed")
}

// Signin exchanges credentials for a bearer token. A success response
// without a token field yields an empty token, not an error.
func (c *Client) Signin(ctx context.Context, username, password string) (string, error) {
	url := fmt.Sprintf("%s/api/public/auth/signin", c.baseURL)
	var body struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "signin", http.MethodPost, url, "", Credentials{Username: username, Password: password}, &body); err != nil {
		return "", errors.Wrap(err, "invalid credentials")
	}
	return body.Token, nil
}

// Profile fetches the signed-in account. It doubles as token validation.
func (c *Client) Profile(ctx context.Context, token string) (user.User, error) {
	url := fmt.Sprintf("%s/api/private/profile/", c.baseURL)
	var u user.User
	err := c.do(ctx, "profile", http.MethodGet, url, token, nil, &u)
	return u, errors.Wrap(err, "failed to fetch profile")
}

// ListProducts fetches all products of the signed-in account.
func (c *Client) ListProducts(ctx context.Context, token string) ([]product.Product, error) {
	url := fmt.Sprintf("%s/api/private/products/", c.baseURL)
	var ps []product.Product
	err := c.do(ctx, "listProducts", http.MethodGet, url, token, nil, &ps)
	return ps, errors.Wrap(err, "failed to fetch products")
}

// CreateProduct adds a product and returns the stored record.
func (c *Client) CreateProduct(ctx context.Context, token string, np NewProduct) (product.Product, error) {
	url := fmt.Sprintf("%s/api/private/products/", c.baseURL)
	var p product.Product
	err := c.do(ctx, "createProduct", http.MethodPost, url, token, np, &p)
	return p, errors.Wrap(err, "failed to create product")
}

// GetProduct fetches one product by id. A missing product surfaces as
// ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, token, id string) (product.Product, error) {
	url := fmt.Sprintf("%s/api/private/products/%s", c.baseURL, id)
	var p product.Product
	err := c.do(ctx, "getProduct", http.MethodGet, url, token, nil, &p)
	return p, errors.Wrap(err, "failed to fetch product")
}

// UpdateProduct applies a partial patch and returns the updated record.
// Only the non-nil fields of the patch are sent.
func (c *Client) UpdateProduct(ctx context.Context, token, id string, up ProductUpdate) (product.Product, error) {
	url := fmt.Sprintf("%s/api/private/products/%s", c.baseURL, id)
	var p product.Product
	err := c.do(ctx, "updateProduct", http.MethodPut, url, token, up, &p)
	return p, errors.Wrap(err, "failed to update product")
}

// DeleteProduct removes one product by id.
func (c *Client) DeleteProduct(ctx context.Context, token, id string) error {
	url := fmt.Sprintf("%s/api/private/products/%s", c.baseURL, id)
	err := c.do(ctx, "deleteProduct", http.MethodDelete, url, token, nil, nil)
	return errors.Wrap(err, "failed to delete product")
}

// ResolveImage fetches a protected image and re-encodes it as a data URL
// usable directly in an img tag. Callers are expected to treat any failure
// as "no image"; a broken image must never block a page.
func (c *Client) ResolveImage(ctx context.Context, token, imageURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "resolveImage")
	defer span.End()
	span.SetAttributes(attribute.String("url", imageURL))

	req, err := c.newRequest(ctx, http.MethodGet, imageURL, token, nil)
	if err != nil {
		span.SetStatus(codes.Error, "building request")
		return "", errors.Wrap(err, "failed to fetch image")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "sending request")
		return "", errors.Wrap(err, "failed to fetch image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, "unexpected status code")
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		return "", errors.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		span.SetStatus(codes.Error, "reading body")
		return "", errors.Wrap(err, "failed to fetch image")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(b)
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(b)), nil
}
