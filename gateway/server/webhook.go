package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"spicepay/gateway/paymob"
	"spicepay/observability/logging"
	"spicepay/storage/deliveries"
	"spicepay/storage/orders"
)

// Delivery outcomes recorded in the audit log and metrics.
const (
	outcomeApplied      = "applied"
	outcomeReplayed     = "replayed"
	outcomeRejected     = "rejected"
	outcomeUnknownOrder = "unknown_order"
	outcomeError        = "error"
)

// handleWebhook processes a transaction-processed notification. A non-2xx
// answer tells the gateway to redeliver, so only genuinely retryable
// conditions (store failures, missing secret) use the 5xx range.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := s.nowFn()

	reader := http.MaxBytesReader(w, r.Body, maxCallbackBody)
	raw, err := io.ReadAll(reader)
	_ = r.Body.Close()
	if err != nil {
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusBadRequest, "invalid payload")
		return
	}

	decoded, err := decodeCallbackBody(r.Header.Get("Content-Type"), raw)
	if err != nil {
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusBadRequest, "invalid payload")
		return
	}
	tx, err := decoded.transaction()
	if err != nil {
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusBadRequest, "missing transaction")
		return
	}
	signature := decoded.signature()
	if signature == "" {
		// Legacy integrations put the digest on the query string instead.
		signature = strings.TrimSpace(r.URL.Query().Get("hmac"))
	}
	if signature == "" {
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusBadRequest, "missing hmac")
		return
	}

	trusted, err := s.verifier.Verify(tx, signature, paymob.ScopeWebhook)
	if err != nil {
		s.logger.Error("webhook verification unavailable", slog.String("error", err.Error()))
		s.finishWebhook(w, r, start, "", outcomeError, http.StatusInternalServerError, "verification unavailable")
		return
	}
	if !trusted {
		s.metrics.RecordSignatureFailure()
		s.logger.Warn("webhook signature rejected",
			logging.Signature("hmac", signature),
			slog.String("remote", r.RemoteAddr),
		)
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusUnauthorized, "invalid signature")
		return
	}

	merchantOrderID := paymob.Extract(tx, "order.merchant_order_id")
	if merchantOrderID == "" {
		s.finishWebhook(w, r, start, "", outcomeRejected, http.StatusBadRequest, "missing merchant order id")
		return
	}

	paymentStatus, orderStatus := deriveStatuses(tx)

	order, err := s.orders.FindByNumber(r.Context(), merchantOrderID)
	if errors.Is(err, orders.ErrNotFound) {
		s.finishWebhook(w, r, start, merchantOrderID, outcomeUnknownOrder, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.logger.Error("order lookup failed",
			slog.String("merchant_order_id", merchantOrderID),
			slog.String("error", err.Error()),
		)
		s.finishWebhook(w, r, start, merchantOrderID, outcomeError, http.StatusInternalServerError, "order lookup failed")
		return
	}

	changed, err := s.orders.UpdateStatus(r.Context(), order.OrderNumber, orders.StatusUpdate{
		Status:        orderStatus,
		PaymentStatus: paymentStatus,
		UpdatedAt:     s.nowFn().UTC(),
	})
	if err != nil {
		s.logger.Error("order update failed",
			slog.String("merchant_order_id", merchantOrderID),
			slog.String("error", err.Error()),
		)
		s.finishWebhook(w, r, start, merchantOrderID, outcomeError, http.StatusInternalServerError, "order update failed")
		return
	}

	outcome := outcomeApplied
	if !changed {
		outcome = outcomeReplayed
	}
	s.logger.Info("webhook processed",
		slog.String("merchant_order_id", merchantOrderID),
		slog.String("payment_status", paymentStatus),
		slog.String("order_status", orderStatus),
		slog.Bool("changed", changed),
		logging.PAN("pan", paymob.Extract(tx, "source_data.pan")),
	)
	s.recordDelivery(r, merchantOrderID, outcome, http.StatusOK)
	s.metrics.ObserveWebhook(outcome, s.nowFn().Sub(start))
	s.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// finishWebhook answers an unsuccessful delivery and books it.
func (s *Server) finishWebhook(w http.ResponseWriter, r *http.Request, start time.Time, merchantOrderID, outcome string, status int, message string) {
	s.recordDelivery(r, merchantOrderID, outcome, status)
	s.metrics.ObserveWebhook(outcome, s.nowFn().Sub(start))
	s.writeError(w, status, message)
}

func (s *Server) recordDelivery(r *http.Request, merchantOrderID, outcome string, status int) {
	if s.deliveries == nil {
		return
	}
	err := s.deliveries.Insert(r.Context(), deliveries.Record{
		ID:              uuid.NewString(),
		MerchantOrderID: merchantOrderID,
		Outcome:         outcome,
		HTTPStatus:      status,
		ReceivedAt:      s.nowFn().UTC(),
	})
	if err != nil {
		s.logger.Warn("delivery log write failed", slog.String("error", err.Error()))
	}
}

// deriveStatuses maps the transaction flags onto the order's payment and
// workflow states. A verified transaction with both flags false collapses to
// failed: the redirect field set carries no reliable decline-reason code, so
// no finer classification is attempted anywhere.
func deriveStatuses(tx paymob.Transaction) (paymentStatus, orderStatus string) {
	switch {
	case paymob.Flag(tx, "success"):
		return orders.PaymentStatusPaid, orders.StatusConfirmed
	case paymob.Flag(tx, "pending"):
		return orders.PaymentStatusPending, orders.StatusProcessing
	default:
		return orders.PaymentStatusFailed, orders.StatusPaymentFailed
	}
}
