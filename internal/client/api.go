package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/service"
)

type productList struct {
	Items    []models.Product `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// Browse fetches one catalog page. The query string is the same one the
// storefront shows in its address bar, plus page_size.
func (c *Client) Browse(ctx context.Context, q catalog.Query, pageSize int) (catalog.Result, error) {
	raw := c.codec.Encode(q)
	if pageSize > 0 {
		if raw != "" {
			raw += "&"
		}
		raw += "page_size=" + strconv.Itoa(pageSize)
	}

	var out productList
	if err := c.do(ctx, "list products", call{method: http.MethodGet, path: "/products", query: raw, out: &out}); err != nil {
		return catalog.Result{}, err
	}
	return catalog.Result{Items: out.Items, Total: out.Total, Page: out.Page, PageSize: out.PageSize}, nil
}

func (c *Client) Product(ctx context.Context, id string) (*service.ProductDetail, error) {
	var out service.ProductDetail
	if err := c.do(ctx, "get product", call{method: http.MethodGet, path: "/products/" + url.PathEscape(id), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Navigation(ctx context.Context) ([]models.NavItem, error) {
	var out struct {
		Items []models.NavItem `json:"items"`
	}
	if err := c.do(ctx, "get navigation", call{method: http.MethodGet, path: "/navigation", out: &out}); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// The token identifies the caller to the API. The explicit user is checked
// locally so a signed-out session fails before any request is made.
func requireUser(user models.User, action string) error {
	if user.ID == "" {
		return apperr.AuthRequired(action)
	}
	return nil
}

// Cart returns the cart backend.
func (c *Client) Cart() *CartAPI {
	return &CartAPI{c: c}
}

// CartAPI implements storefront.CartBackend over HTTP.
type CartAPI struct {
	c *Client
}

func (a *CartAPI) Items(ctx context.Context, user models.User) ([]models.CartItem, error) {
	if err := requireUser(user, "view cart"); err != nil {
		return nil, err
	}
	var out struct {
		Items []models.CartItem `json:"items"`
	}
	if err := a.c.do(ctx, "view cart", call{method: http.MethodGet, path: "/cart", out: &out}); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *CartAPI) Add(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	if err := requireUser(user, "add to cart"); err != nil {
		return nil, err
	}
	var out models.CartItem
	err := a.c.do(ctx, "add to cart", call{
		method: http.MethodPost,
		path:   "/cart",
		body:   map[string]any{"product_id": productID, "quantity": quantity},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update returns nil when quantity 0 removed the line.
func (a *CartAPI) Update(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	if err := requireUser(user, "update cart"); err != nil {
		return nil, err
	}
	var out *models.CartItem
	err := a.c.do(ctx, "update cart", call{
		method: http.MethodPut,
		path:   "/cart/" + url.PathEscape(productID),
		body:   map[string]any{"quantity": quantity},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *CartAPI) Remove(ctx context.Context, user models.User, productID string) error {
	if err := requireUser(user, "remove from cart"); err != nil {
		return err
	}
	return a.c.do(ctx, "remove from cart", call{method: http.MethodDelete, path: "/cart/" + url.PathEscape(productID)})
}

// Wishlist returns the wishlist backend.
func (c *Client) Wishlist() *WishlistAPI {
	return &WishlistAPI{c: c}
}

// WishlistAPI implements storefront.WishlistBackend over HTTP.
type WishlistAPI struct {
	c *Client
}

func (a *WishlistAPI) Items(ctx context.Context, user models.User) ([]models.WishlistItem, error) {
	if err := requireUser(user, "view wishlist"); err != nil {
		return nil, err
	}
	var out struct {
		Items []models.WishlistItem `json:"items"`
	}
	if err := a.c.do(ctx, "view wishlist", call{method: http.MethodGet, path: "/wishlist", out: &out}); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *WishlistAPI) Add(ctx context.Context, user models.User, productID string) (*models.WishlistItem, error) {
	if err := requireUser(user, "add to wishlist"); err != nil {
		return nil, err
	}
	var out models.WishlistItem
	err := a.c.do(ctx, "add to wishlist", call{
		method: http.MethodPost,
		path:   "/wishlist",
		body:   map[string]any{"product_id": productID},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *WishlistAPI) Remove(ctx context.Context, user models.User, productID string) error {
	if err := requireUser(user, "remove from wishlist"); err != nil {
		return err
	}
	return a.c.do(ctx, "remove from wishlist", call{method: http.MethodDelete, path: "/wishlist/" + url.PathEscape(productID)})
}

// Me returns the profile behind the client's token.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, "get profile", call{method: http.MethodGet, path: "/me", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the name and avatar of the token's user.
func (c *Client) UpdateProfile(ctx context.Context, in service.ProfileInput) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, "update profile", call{method: http.MethodPut, path: "/me", body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkout turns the cart into an order. An empty key lets the server
// treat every call as a new checkout.
func (c *Client) Checkout(ctx context.Context, user models.User, idempotencyKey string) (*service.CheckoutResult, error) {
	if err := requireUser(user, "checkout"); err != nil {
		return nil, err
	}
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	var out service.CheckoutResult
	if err := c.do(ctx, "checkout", call{method: http.MethodPost, path: "/checkout", headers: headers, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Orders(ctx context.Context, user models.User) ([]models.Order, error) {
	if err := requireUser(user, "view orders"); err != nil {
		return nil, err
	}
	var out struct {
		Orders []models.Order `json:"orders"`
	}
	if err := c.do(ctx, "view orders", call{method: http.MethodGet, path: "/orders", out: &out}); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) Download(ctx context.Context, user models.User, versionID string) (*service.DownloadLink, error) {
	if err := requireUser(user, "download"); err != nil {
		return nil, err
	}
	var out service.DownloadLink
	err := c.do(ctx, "download", call{method: http.MethodGet, path: "/versions/" + url.PathEscape(versionID) + "/download", out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
