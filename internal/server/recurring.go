package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
)

type replaceRecurringItemsRequest struct {
	Items []recurringdomain.ItemInput `json:"items"`
}

func (s *Server) CreateRecurringInvoice(c *gin.Context) {
	var req recurringdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.recurringSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": detail})
}

func (s *Server) ListRecurringInvoices(c *gin.Context) {
	req := recurringdomain.ListRequest{
		CustomerID: optionalString(c.Query("customer_id")),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		st := recurringdomain.Status(status)
		req.Status = &st
	}

	items, err := s.recurringSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetRecurringInvoice(c *gin.Context) {
	detail, err := s.recurringSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) ReplaceRecurringItems(c *gin.Context) {
	var req replaceRecurringItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.recurringSvc.ReplaceItems(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) PauseRecurringInvoice(c *gin.Context) {
	item, err := s.recurringSvc.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ResumeRecurringInvoice(c *gin.Context) {
	item, err := s.recurringSvc.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelRecurringInvoice(c *gin.Context) {
	item, err := s.recurringSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// GenerateRecurringInvoice bills the template's next due period now instead
// of waiting for the scheduler.
func (s *Server) GenerateRecurringInvoice(c *gin.Context) {
	gen, err := s.recurringSvc.GenerateOne(c.Request.Context(), c.Param("id"), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gen})
}
