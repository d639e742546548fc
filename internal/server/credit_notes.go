package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
)

type creditNoteItemRequest struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitAmount  int64            `json:"unit_amount"`
	TaxRateID   string           `json:"tax_rate_id"`
	SortOrder   *int             `json:"sort_order"`
}

func (r creditNoteItemRequest) input() creditnotedomain.ItemInput {
	return creditnotedomain.ItemInput{
		Description: strings.TrimSpace(r.Description),
		Quantity:    quantityOrOne(r.Quantity),
		UnitAmount:  r.UnitAmount,
		TaxRateID:   strings.TrimSpace(r.TaxRateID),
		SortOrder:   r.SortOrder,
	}
}

type createCreditNoteRequest struct {
	InvoiceID string                  `json:"invoice_id"`
	Reason    string                  `json:"reason"`
	Items     []creditNoteItemRequest `json:"items"`
}

type applyCreditNoteRequest struct {
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
}

func (s *Server) CreateCreditNote(c *gin.Context) {
	var req createCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]creditnotedomain.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.input())
	}
	note, err := s.creditNoteSvc.Create(c.Request.Context(), creditnotedomain.CreateRequest{
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Reason:    strings.TrimSpace(req.Reason),
		Items:     items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": note})
}

func (s *Server) GetCreditNote(c *gin.Context) {
	note, err := s.creditNoteSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (s *Server) AddCreditNoteItem(c *gin.Context) {
	var req creditNoteItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	note, err := s.creditNoteSvc.AddItem(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (s *Server) RemoveCreditNoteItem(c *gin.Context) {
	note, err := s.creditNoteSvc.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("item_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (s *Server) IssueCreditNote(c *gin.Context) {
	note, err := s.creditNoteSvc.Issue(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (s *Server) ApplyCreditNote(c *gin.Context) {
	var req applyCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	app, err := s.creditNoteSvc.Apply(c.Request.Context(), creditnotedomain.ApplyRequest{
		CreditNoteID: c.Param("id"),
		InvoiceID:    strings.TrimSpace(req.InvoiceID),
		Amount:       req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": app})
}

func (s *Server) VoidCreditNote(c *gin.Context) {
	note, err := s.creditNoteSvc.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (s *Server) ListCreditNoteApplications(c *gin.Context) {
	apps, err := s.creditNoteSvc.ListApplications(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": apps})
}

func (s *Server) ReverseCreditNoteApplication(c *gin.Context) {
	reversal, err := s.creditNoteSvc.ReverseApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reversal})
}
