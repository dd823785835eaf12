package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"resty.dev/v3"
)

// Client talks to the hosted payment gateway's REST API. The gateway owns
// products, prices and checkout sessions; we only hold their identifiers.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, secretKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(secretKey)
	return &Client{http: c}
}

func (c *Client) Close() error {
	return c.http.Close()
}

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Price struct {
	ID         string `json:"id"`
	ProductID  string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateProduct(ctx context.Context, name, description string) (*Product, error) {
	var out Product
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"name":        name,
			"description": description,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/products")
	if err != nil {
		return nil, errors.Wrap(err, "gateway: create product")
	}
	if res.IsError() {
		return nil, errors.Newf("gateway: create product: %s", apiErr.Error.Message)
	}
	return &out, nil
}

// CreatePrice registers a price in minor units against an existing gateway
// product.
func (c *Client) CreatePrice(ctx context.Context, productID string, unitAmount int64, currency string) (*Price, error) {
	var out Price
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"product":     productID,
			"unit_amount": strconv.FormatInt(unitAmount, 10),
			"currency":    currency,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/prices")
	if err != nil {
		return nil, errors.Wrap(err, "gateway: create price")
	}
	if res.IsError() {
		return nil, errors.Newf("gateway: create price: %s", apiErr.Error.Message)
	}
	return &out, nil
}

type SessionParams struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CreateCheckoutSession opens a single-line hosted session in payment mode.
// Metadata travels to the gateway untouched and comes back on the completed
// event; it is the only link between the session and the transaction we
// record later.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	form := map[string]string{
		"mode":                    "payment",
		"line_items[0][price]":    p.PriceID,
		"line_items[0][quantity]": "1",
		"success_url":             p.SuccessURL,
		"cancel_url":              p.CancelURL,
	}
	for k, v := range p.Metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}

	var out Session
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, errors.Wrap(err, "gateway: create checkout session")
	}
	if res.IsError() {
		return nil, errors.Newf("gateway: create checkout session: %s", apiErr.Error.Message)
	}
	return &out, nil
}
