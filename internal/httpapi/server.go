// Package httpapi exposes the payment ledger over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/internal/config"
	"github.com/MarkoPoloResearchLab/vetpay/internal/view"
	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	eventChargeSucceeded  = "charge.succeeded"
	webhookStatusRecorded = "recorded"
	webhookStatusIgnored  = "ignored"
	webhookStatusDup      = "duplicate"
	deletedMessage        = "payment deleted"
	shutdownTimeout       = 5 * time.Second
)

// Run serves the HTTP API until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, service *ledger.Service, logger *zap.Logger) error {
	handler := &httpHandler{
		logger:  logger,
		service: service,
		timeout: cfg.RequestTimeout,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.HTTPListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg config.Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	appointments := router.Group("/appointments/:id")
	appointments.POST("/payments", handler.handleRecordPayment)
	appointments.POST("/payments/split", handler.handleRecordSplitPayments)
	appointments.GET("/payments", handler.handleListPayments)
	appointments.GET("/payment-summary", handler.handlePaymentSummary)
	appointments.PUT("/payments/:paymentId", handler.handleUpdatePaymentStatus)
	appointments.DELETE("/payments/:paymentId", handler.handleDeletePayment)

	router.POST("/webhooks/:provider", handler.handleProviderWebhook)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *ledger.Service
	timeout time.Duration
}

func (handler *httpHandler) handleRecordPayment(ctx *gin.Context) {
	appointmentID, err := ledger.NewAppointmentID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request view.PaymentRequest
	if err := handler.decodeBody(ctx, &request); err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payment, status, err := handler.service.RecordPayment(requestCtx, appointmentID, request.Input())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"payment":           view.NewPayment(payment),
		"appointmentStatus": view.NewAppointmentStatus(status),
	})
}

func (handler *httpHandler) handleRecordSplitPayments(ctx *gin.Context) {
	appointmentID, err := ledger.NewAppointmentID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request view.SplitRequest
	if err := handler.decodeBody(ctx, &request); err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	recorded, err := handler.service.RecordSplitPayments(requestCtx, appointmentID, request.Inputs())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"payments":          view.NewRecordedPayments(recorded),
		"appointmentStatus": view.NewAppointmentStatus(recorded[len(recorded)-1].Status),
	})
}

func (handler *httpHandler) handleListPayments(ctx *gin.Context) {
	appointmentID, err := ledger.NewAppointmentID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payments, summary, err := handler.service.ListPayments(requestCtx, appointmentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"data":    view.NewPayments(payments),
		"summary": view.NewSummary(summary),
	})
}

func (handler *httpHandler) handlePaymentSummary(ctx *gin.Context) {
	appointmentID, err := ledger.NewAppointmentID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	summary, payments, err := handler.service.PaymentSummary(requestCtx, appointmentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"data":     view.NewSummary(summary),
		"payments": view.NewPayments(payments),
	})
}

func (handler *httpHandler) handleUpdatePaymentStatus(ctx *gin.Context) {
	appointmentID, paymentID, err := paymentPath(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request view.StatusRequest
	if err := handler.decodeBody(ctx, &request); err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payment, status, err := handler.service.UpdatePaymentStatus(requestCtx, appointmentID, paymentID, request.PaymentStatus)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"payment":                  view.NewPayment(payment),
		"appointmentPaymentStatus": status.PaymentStatus.String(),
		"appointmentStatus":        view.NewAppointmentStatus(status),
	})
}

func (handler *httpHandler) handleDeletePayment(ctx *gin.Context) {
	appointmentID, paymentID, err := paymentPath(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	status, err := handler.service.DeletePayment(requestCtx, appointmentID, paymentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":                  deletedMessage,
		"appointmentPaymentStatus": status.PaymentStatus.String(),
		"appointmentStatus":        view.NewAppointmentStatus(status),
	})
}

// handleProviderWebhook records one payment per confirmed charge. Redelivered
// charges are acknowledged without a second write.
func (handler *httpHandler) handleProviderWebhook(ctx *gin.Context) {
	var request webhookRequest
	if err := handler.decodeBody(ctx, &request); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if strings.TrimSpace(request.EventType) != eventChargeSucceeded {
		ctx.JSON(http.StatusAccepted, gin.H{"status": webhookStatusIgnored})
		return
	}
	appointmentID, err := ledger.NewAppointmentID(request.AppointmentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payment, status, err := handler.service.RecordPayment(requestCtx, appointmentID, request.input(ctx.Param("provider")))
	if errors.Is(err, ledger.ErrDuplicateProviderTransaction) {
		ctx.JSON(http.StatusOK, gin.H{"status": webhookStatusDup})
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"status":            webhookStatusRecorded,
		"payment":           view.NewPayment(payment),
		"appointmentStatus": view.NewAppointmentStatus(status),
	})
}

func (handler *httpHandler) decodeBody(ctx *gin.Context, target any) error {
	raw, err := ctx.GetRawData()
	if err != nil {
		return errors.Join(view.ErrMalformedBody, err)
	}
	return view.Decode(raw, target)
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	classified := view.Classify(err)
	response := errorResponse(classified.Code, classified.Message)
	if classified.Index != nil {
		response["error"].(gin.H)["index"] = *classified.Index
	}
	switch classified.Kind {
	case view.KindInvalid:
		ctx.JSON(http.StatusBadRequest, response)
	case view.KindNotFound:
		ctx.JSON(http.StatusNotFound, response)
	case view.KindConflict:
		ctx.JSON(http.StatusConflict, response)
	default:
		handler.logger.Error("payment request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, response)
	}
}

func paymentPath(ctx *gin.Context) (ledger.AppointmentID, ledger.PaymentID, error) {
	appointmentID, err := ledger.NewAppointmentID(ctx.Param("id"))
	if err != nil {
		return ledger.AppointmentID{}, ledger.PaymentID{}, err
	}
	paymentID, err := ledger.NewPaymentID(ctx.Param("paymentId"))
	if err != nil {
		return ledger.AppointmentID{}, ledger.PaymentID{}, err
	}
	return appointmentID, paymentID, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
