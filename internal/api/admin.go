package api

import (
	"net/http"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// maxUploadSize bounds version file uploads
const maxUploadSize = 256 << 20

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	p, err := h.svc.Admin.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	p, err := h.svc.Admin.UpdateProduct(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Admin.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addVersion(c *gin.Context) {
	var in service.VersionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	v, err := h.svc.Admin.AddVersion(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// uploadVersionFile takes a multipart form with the build in "file"
func (h *Handler) uploadVersionFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "Unreadable file", err)
		return
	}
	defer f.Close()

	v, err := h.svc.Admin.UploadVersionFile(c.Request.Context(), c.Param("id"), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// pageParams reads the optional page and page_size parameters
func pageParams(c *gin.Context) (int, int, bool) {
	page, ok := queryInt(c, "page")
	if !ok {
		return 0, 0, false
	}
	size, ok := queryInt(c, "page_size")
	if !ok {
		return 0, 0, false
	}
	return page, size, true
}

func (h *Handler) adminOrders(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		badRequest(c, "Invalid paging parameters", nil)
		return
	}
	orders, err := h.svc.Admin.Orders(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := h.svc.Admin.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

func (h *Handler) adminUsers(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		badRequest(c, "Invalid paging parameters", nil)
		return
	}
	users, err := h.svc.Admin.Users(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) updateUserRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	p, err := h.svc.Admin.UpdateUserRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) adminReviews(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		badRequest(c, "Invalid paging parameters", nil)
		return
	}
	reviews, err := h.svc.Admin.Reviews(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *Handler) moderateReview(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := h.svc.Admin.ModerateReview(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Admin.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) settings(c *gin.Context) {
	items, err := h.svc.Admin.Settings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": items})
}

func (h *Handler) putSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	item, err := h.svc.Admin.PutSetting(c.Request.Context(), c.Param("name"), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) replaceNavigation(c *gin.Context) {
	var items []models.NavItem
	if err := c.ShouldBindJSON(&items); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	out, err := h.svc.Admin.ReplaceNavigation(c.Request.Context(), items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}
