package api

import (
	"net/http"

	"storefront/internal/auth"

	"github.com/gin-gonic/gin"
)

// listProducts serves one catalog page. The query string uses the same
// keys the storefront writes into its URLs; page_size is optional.
func (h *Handler) listProducts(c *gin.Context) {
	codec := h.svc.Catalog.Codec()
	q := codec.DecodeValues(c.Request.URL.Query())

	size, ok := queryInt(c, "page_size")
	if !ok {
		badRequest(c, "Invalid page_size", nil)
		return
	}

	res, err := h.svc.Catalog.Browse(c.Request.Context(), q, size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      res.Items,
		"total":      res.Total,
		"page":       res.Page,
		"page_size":  res.PageSize,
		"page_count": res.PageCount(),
		"query":      codec.Encode(q.Normalize(codec.PriceCeiling)),
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	detail, err := h.svc.Catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) getVersions(c *gin.Context) {
	versions, err := h.svc.Catalog.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *Handler) getReviews(c *gin.Context) {
	reviews, err := h.svc.Catalog.Reviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Content string `json:"content"`
}

func (h *Handler) submitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	user, _ := auth.CurrentUser(c)
	review, err := h.svc.Catalog.SubmitReview(c.Request.Context(), user, c.Param("id"), req.Rating, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) getNavigation(c *gin.Context) {
	items, err := h.svc.Catalog.Navigation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
