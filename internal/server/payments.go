package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
)

type recordPaymentRequest struct {
	InvoiceID         string     `json:"invoice_id"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	FailureReason     string     `json:"failure_reason"`
	AttemptedAt       *time.Time `json:"attempted_at"`
}

type recordRefundRequest struct {
	Amount           int64  `json:"amount"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
	ProviderRefundID string `json:"provider_refund_id"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		InvoiceID:         strings.TrimSpace(req.InvoiceID),
		Amount:            req.Amount,
		Currency:          strings.TrimSpace(req.Currency),
		Status:            paymentdomain.PaymentStatus(strings.TrimSpace(req.Status)),
		Provider:          strings.TrimSpace(req.Provider),
		ProviderPaymentID: strings.TrimSpace(req.ProviderPaymentID),
		FailureReason:     strings.TrimSpace(req.FailureReason),
		AttemptedAt:       req.AttemptedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) CompletePayment(c *gin.Context) {
	payment, err := s.paymentSvc.CompletePayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) FailPayment(c *gin.Context) {
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.FailPayment(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) RecordRefund(c *gin.Context) {
	var req recordRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	refund, err := s.paymentSvc.RecordRefund(c.Request.Context(), paymentdomain.RecordRefundRequest{
		PaymentID:        c.Param("id"),
		Amount:           req.Amount,
		Status:           paymentdomain.RefundStatus(strings.TrimSpace(req.Status)),
		Reason:           strings.TrimSpace(req.Reason),
		ProviderRefundID: strings.TrimSpace(req.ProviderRefundID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": refund})
}

func (s *Server) ListRefunds(c *gin.Context) {
	refunds, err := s.paymentSvc.ListRefunds(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": refunds})
}
