package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	obsmiddleware "github.com/smallbiznis/ledgerbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	recurringservice "github.com/smallbiznis/ledgerbook/internal/recurring/service"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	port := cfg.HTTPPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine        *gin.Engine
	Clock         clock.Clock
	CustomerSvc   customerdomain.Service
	TaxSvc        taxdomain.Service
	DiscountSvc   discountdomain.Service
	InvoiceSvc    invoicedomain.Service
	PaymentSvc    paymentdomain.Service
	WebhookSvc    paymentdomain.WebhookService
	CreditNoteSvc creditnotedomain.Service
	RecurringSvc  *recurringservice.Service
	AuditSvc      auditdomain.Service
}

type Server struct {
	engine        *gin.Engine
	clock         clock.Clock
	customerSvc   customerdomain.Service
	taxSvc        taxdomain.Service
	discountSvc   discountdomain.Service
	invoiceSvc    invoicedomain.Service
	paymentSvc    paymentdomain.Service
	webhookSvc    paymentdomain.WebhookService
	creditNoteSvc creditnotedomain.Service
	recurringSvc  *recurringservice.Service
	auditSvc      auditdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:        p.Engine,
		clock:         p.Clock,
		customerSvc:   p.CustomerSvc,
		taxSvc:        p.TaxSvc,
		discountSvc:   p.DiscountSvc,
		invoiceSvc:    p.InvoiceSvc,
		paymentSvc:    p.PaymentSvc,
		webhookSvc:    p.WebhookSvc,
		creditNoteSvc: p.CreditNoteSvc,
		recurringSvc:  p.RecurringSvc,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Server) RegisterRoutes() {
	r := s.engine

	// Providers sign their deliveries; the org comes from the payment itself.
	r.POST("/v1/webhooks/:provider", s.HandlePaymentWebhook)

	v1 := r.Group("/v1", OrgContext())
	{
		v1.POST("/customers", s.CreateCustomer)
		v1.GET("/customers", s.ListCustomers)
		v1.GET("/customers/:id", s.GetCustomerByID)

		v1.POST("/tax-rates", s.CreateTaxRate)
		v1.GET("/tax-rates", s.ListTaxRates)
		v1.GET("/tax-rates/:id", s.GetTaxRate)
		v1.PATCH("/tax-rates/:id", s.UpdateTaxRate)
		v1.POST("/tax-rates/:id/deactivate", s.DeactivateTaxRate)

		v1.POST("/discounts", s.CreateDiscount)
		v1.GET("/discounts", s.ListDiscounts)
		v1.POST("/discounts/validate", s.ValidateDiscount)
		v1.GET("/discounts/:id", s.GetDiscount)
		v1.POST("/discounts/:id/deactivate", s.DeactivateDiscount)
		v1.POST("/discounts/:id/redemptions/:invoice_id/reverse", s.ReverseDiscountRedemption)

		v1.POST("/invoices", s.CreateInvoice)
		v1.GET("/invoices", s.ListInvoices)
		v1.GET("/invoices/:id", s.GetInvoiceByID)
		v1.DELETE("/invoices/:id", s.DeleteDraftInvoice)
		v1.POST("/invoices/:id/items", s.AddInvoiceItem)
		v1.PATCH("/invoices/:id/items/:item_id", s.UpdateInvoiceItem)
		v1.DELETE("/invoices/:id/items/:item_id", s.RemoveInvoiceItem)
		v1.POST("/invoices/:id/recalculate", s.RecalculateInvoice)
		v1.POST("/invoices/:id/discount", s.AttachInvoiceDiscount)
		v1.DELETE("/invoices/:id/discount", s.DetachInvoiceDiscount)
		v1.POST("/invoices/:id/issue", s.IssueInvoice)
		v1.POST("/invoices/:id/void", s.VoidInvoice)
		v1.POST("/invoices/:id/write-off", s.WriteOffInvoice)
		v1.POST("/invoices/:id/archive", s.ArchiveInvoice)
		v1.GET("/invoices/:id/payments", s.ListInvoicePayments)
		v1.GET("/invoices/:id/credit-notes", s.ListInvoiceCreditNotes)

		v1.POST("/payments", s.RecordPayment)
		v1.GET("/payments/:id", s.GetPayment)
		v1.POST("/payments/:id/complete", s.CompletePayment)
		v1.POST("/payments/:id/fail", s.FailPayment)
		v1.POST("/payments/:id/refunds", s.RecordRefund)
		v1.GET("/payments/:id/refunds", s.ListRefunds)

		v1.POST("/credit-notes", s.CreateCreditNote)
		v1.GET("/credit-notes/:id", s.GetCreditNote)
		v1.POST("/credit-notes/:id/items", s.AddCreditNoteItem)
		v1.DELETE("/credit-notes/:id/items/:item_id", s.RemoveCreditNoteItem)
		v1.POST("/credit-notes/:id/issue", s.IssueCreditNote)
		v1.POST("/credit-notes/:id/apply", s.ApplyCreditNote)
		v1.POST("/credit-notes/:id/void", s.VoidCreditNote)
		v1.GET("/credit-notes/:id/applications", s.ListCreditNoteApplications)
		v1.POST("/credit-note-applications/:id/reverse", s.ReverseCreditNoteApplication)

		v1.POST("/recurring-invoices", s.CreateRecurringInvoice)
		v1.GET("/recurring-invoices", s.ListRecurringInvoices)
		v1.GET("/recurring-invoices/:id", s.GetRecurringInvoice)
		v1.PUT("/recurring-invoices/:id/items", s.ReplaceRecurringItems)
		v1.POST("/recurring-invoices/:id/pause", s.PauseRecurringInvoice)
		v1.POST("/recurring-invoices/:id/resume", s.ResumeRecurringInvoice)
		v1.POST("/recurring-invoices/:id/cancel", s.CancelRecurringInvoice)
		v1.POST("/recurring-invoices/:id/generate", s.GenerateRecurringInvoice)

		v1.GET("/audit-logs", s.ListAuditLogs)
	}
}
