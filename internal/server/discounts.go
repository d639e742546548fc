package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
)

func (s *Server) CreateDiscount(c *gin.Context) {
	var req discountdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	discount, err := s.discountSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": discount})
}

func (s *Server) ListDiscounts(c *gin.Context) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	discounts, err := s.discountSvc.List(c.Request.Context(), discountdomain.ListRequest{
		Code:    strings.TrimSpace(c.Query("code")),
		Active:  active,
		SortBy:  strings.TrimSpace(c.Query("sort_by")),
		OrderBy: strings.TrimSpace(c.Query("order_by")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": discounts})
}

func (s *Server) GetDiscount(c *gin.Context) {
	discount, err := s.discountSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": discount})
}

func (s *Server) DeactivateDiscount(c *gin.Context) {
	discount, err := s.discountSvc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": discount})
}

// ReverseDiscountRedemption releases the redemption an invoice holds on a
// discount and returns the discount with its updated counter.
func (s *Server) ReverseDiscountRedemption(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.discountSvc.ReverseRedemption(ctx, c.Param("id"), c.Param("invoice_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	discount, err := s.discountSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": discount})
}

// ValidateDiscount previews whether a code applies to an amount.
func (s *Server) ValidateDiscount(c *gin.Context) {
	var req discountdomain.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	eval, err := s.discountSvc.Validate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": eval})
}
