// Package backend is the HTTP client for the Lucky loyalty REST API. Every
// response is normalized into internal/model types before it leaves the package.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/luckylubricants/rewards/internal/model"
)

// Credentials supplies the bearer token and user id attached to requests.
// storage.Store satisfies it.
type Credentials interface {
	Token() string
	UserID() (int64, bool)
}

// Client talks to the loyalty backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client for baseURL with a 15-second timeout.
func New(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- AUTH ---

// Login exchanges an identifier (phone or email) and password for a bearer token.
// It does not persist anything; see session.Manager.
func (c *Client) Login(ctx context.Context, identifier, password string) (model.LoginResult, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	raw, err := c.do(ctx, http.MethodPost, "auth/login", nil, body, false)
	if err != nil {
		return model.LoginResult{}, err
	}
	var w wireLogin
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.LoginResult{}, fmt.Errorf("decoding login response: %w", err)
	}
	res := w.model()
	if res.AccessToken == "" {
		return res, ErrNoToken
	}
	return res, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg model.Registration) error {
	_, err := c.do(ctx, http.MethodPost, "auth/register", nil, reg, false)
	return err
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (model.Profile, error) {
	raw, err := c.do(ctx, http.MethodGet, "auth/profile", c.userQuery(), nil, true)
	if err != nil {
		return model.Profile{}, err
	}
	var w wireProfile
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return w.model(), nil
}

// UploadProfileImage sends a new avatar as multipart form data and returns its URL,
// when the backend reports one.
func (c *Client) UploadProfileImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	uid := "null"
	if id, ok := c.creds.UserID(); ok {
		uid = strconv.FormatInt(id, 10)
	}
	if err := mw.WriteField("user_id", uid); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("auth/profile/upload", nil), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)
	raw, err := c.send(req)
	if err != nil {
		return "", err
	}
	var w wireUpload
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return firstString(w.ProfileImage, w.ImageURL, w.URL), nil
}

// --- WALLET & SCANNING ---

// Balance fetches the points balance.
func (c *Client) Balance(ctx context.Context) (model.Balance, error) {
	raw, err := c.do(ctx, http.MethodGet, "wallet/balance", c.userQuery(), nil, true)
	if err != nil {
		return model.Balance{}, err
	}
	var w wireBalance
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Balance{}, fmt.Errorf("decoding balance: %w", err)
	}
	return w.model(), nil
}

// ScanVoucher submits a voucher code for points.
func (c *Client) ScanVoucher(ctx context.Context, code string) (model.ScanResult, error) {
	body := map[string]any{"uuid": code, "user_id": c.userBody()}
	raw, err := c.do(ctx, http.MethodPost, "wallet/scan", nil, body, true)
	if err != nil {
		return model.ScanResult{}, err
	}
	var w wireScan
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.ScanResult{}, fmt.Errorf("decoding scan response: %w", err)
	}
	return w.model(), nil
}

// Transactions lists the wallet ledger.
func (c *Client) Transactions(ctx context.Context) ([]model.Transaction, error) {
	raw, err := c.do(ctx, http.MethodGet, "wallet/transactions", c.userQuery(), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireTransaction.model), nil
}

// --- REWARDS & REDEMPTION ---

// Rewards lists the reward catalog.
func (c *Client) Rewards(ctx context.Context) ([]model.Reward, error) {
	raw, err := c.do(ctx, http.MethodGet, "rewards/list", nil, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireReward.model), nil
}

// Redeem claims a reward. Numeric ids are sent as numbers.
func (c *Client) Redeem(ctx context.Context, rewardID string) (model.RedeemResult, error) {
	var id any = rewardID
	if n, err := strconv.ParseInt(rewardID, 10, 64); err == nil {
		id = n
	}
	body := map[string]any{"reward_id": id, "user_id": c.userBody()}
	raw, err := c.do(ctx, http.MethodPost, "rewards/redeem", nil, body, true)
	if err != nil {
		return model.RedeemResult{}, err
	}
	var w wireRedeem
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.RedeemResult{}, fmt.Errorf("decoding redeem response: %w", err)
	}
	return model.RedeemResult{Message: w.Message, Code: w.Code}, nil
}

// RedemptionHistory lists past reward claims.
func (c *Client) RedemptionHistory(ctx context.Context) ([]model.Redemption, error) {
	raw, err := c.do(ctx, http.MethodGet, "rewards/history", c.userQuery(), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireRedemption.model), nil
}

// --- PRODUCT CATALOG & ORDERS ---

// Products lists the product catalog.
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	raw, err := c.do(ctx, http.MethodGet, "products/list", nil, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireProduct.model), nil
}

// AddToCart adds a product to the server-side cart.
func (c *Client) AddToCart(ctx context.Context, productID string) error {
	body := map[string]any{"product_id": productID, "user_id": c.userBody()}
	_, err := c.do(ctx, http.MethodPost, "products/cart/add", nil, body, true)
	return err
}

// PlaceOrder places the current cart. It needs a stored user id.
func (c *Client) PlaceOrder(ctx context.Context) (model.Order, error) {
	id, ok := c.creds.UserID()
	if !ok {
		return model.Order{}, ErrNoSession
	}
	raw, err := c.do(ctx, http.MethodPost, "products/order/place", nil, map[string]int64{"user_id": id}, true)
	if err != nil {
		return model.Order{}, err
	}
	var w wireOrder
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Order{}, fmt.Errorf("decoding order response: %w", err)
	}
	return model.Order{ID: firstString(string(w.ID), string(w.IDCamel)), Message: w.Message}, nil
}

// --- CONTENT & SUPPORT ---

// ContactSupport files a support request.
func (c *Client) ContactSupport(ctx context.Context, subject, message string) (model.Ticket, error) {
	body := map[string]any{"subject": subject, "message": message, "user_id": c.userBody()}
	raw, err := c.do(ctx, http.MethodPost, "content/support/contact", nil, body, true)
	if err != nil {
		return model.Ticket{}, err
	}
	var w wireTicket
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Ticket{}, fmt.Errorf("decoding support response: %w", err)
	}
	return model.Ticket{ID: firstString(string(w.ID), string(w.IDCamel)), Message: w.Message}, nil
}

// Banners lists home screen banners.
func (c *Client) Banners(ctx context.Context) ([]model.Banner, error) {
	raw, err := c.do(ctx, http.MethodGet, "content/banners", nil, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireBanner.model), nil
}

// Notifications lists the user's inbox. A payload that is not an array is
// treated as an empty inbox.
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	raw, err := c.do(ctx, http.MethodGet, "content/notifications", c.userQuery(), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeList(raw, wireNotification.model), nil
}

// --- plumbing ---

func (c *Client) userQuery() url.Values {
	q := url.Values{}
	if id, ok := c.creds.UserID(); ok {
		q.Set("user_id", strconv.FormatInt(id, 10))
	}
	return q
}

// userBody returns the user id for JSON bodies; nil marshals as null.
func (c *Client) userBody() *int64 {
	if id, ok := c.creds.UserID(); ok {
		return &id
	}
	return nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) authorize(req *http.Request) {
	if tok := c.creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, auth bool) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s body: %w", path, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.authorize(req)
	}
	return c.send(req)
}

// send executes req and returns the body of a 2xx response. Non-2xx responses
// become *APIError with the server's message.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: extractMessage(data, resp.StatusCode)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}
