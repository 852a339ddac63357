package api

import (
	"crypto/subtle"
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/auth"

	"github.com/gin-gonic/gin"
)

const webhookSecretHeader = "X-Webhook-Secret"

type cartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	items, err := h.svc.Cart.Items(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// addToCart adds quantity (default 1) of a product to the cart
func (h *Handler) addToCart(c *gin.Context) {
	req := cartRequest{Quantity: 1}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	user, _ := auth.CurrentUser(c)
	item, err := h.svc.Cart.Add(c.Request.Context(), user, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// updateCart sets a line's quantity; zero removes the line
func (h *Handler) updateCart(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	user, _ := auth.CurrentUser(c)
	item, err := h.svc.Cart.Update(c.Request.Context(), user, c.Param("productId"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeFromCart(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	if err := h.svc.Cart.Remove(c.Request.Context(), user, c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getWishlist(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	items, err := h.svc.Wishlist.Items(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) addToWishlist(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	user, _ := auth.CurrentUser(c)
	item, err := h.svc.Wishlist.Add(c.Request.Context(), user, req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	if err := h.svc.Wishlist.Remove(c.Request.Context(), user, c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// checkout turns the caller's cart into an order
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	user, _ := auth.CurrentUser(c)
	res, err := h.svc.Checkout.Checkout(c.Request.Context(), user, req.IdempotencyKey)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) listOrders(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	orders, err := h.svc.Orders.Orders(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	order, err := h.svc.Orders.Order(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) download(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	link, err := h.svc.Downloads.Link(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
	Succeeded        bool   `json:"succeeded"`
}

// confirmPayment is called by the hosted payment page once the buyer has
// paid or given up. It is authenticated by a shared secret.
func (h *Handler) confirmPayment(c *gin.Context) {
	secret := c.GetHeader(webhookSecretHeader)
	if h.opts.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.WebhookSecret)) != 1 {
		respondError(c, apperr.Forbidden("confirm payment"))
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.svc.Orders.ConfirmPayment(c.Request.Context(), req.PaymentReference, req.Succeeded)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
