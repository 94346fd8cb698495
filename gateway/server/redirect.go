package server

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"spicepay/gateway/paymob"
	"spicepay/storage/orders"
)

// Redirect outcomes, in the order they are decided.
const (
	redirectInvalid = "invalid"
	redirectSuccess = "success"
	redirectPending = "pending"
	redirectFailed  = "failed"
)

var redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Payment {{.Outcome}}</title>
</head>
<body>
  <main data-outcome="{{.Outcome}}">
    {{if eq .Outcome "success"}}<h1>Thank you, your payment went through.</h1>
    {{else if eq .Outcome "pending"}}<h1>Your payment is being processed.</h1>
    {{else if eq .Outcome "failed"}}<h1>Your payment did not go through.</h1>
    {{else}}<h1>We could not confirm this payment.</h1>
    {{end}}
    {{if .MerchantOrderID}}<p>Order <strong>{{.MerchantOrderID}}</strong></p>{{end}}
    {{if .Amount}}<p>Amount: {{.Amount}}</p>{{end}}
    {{if .OrderStatus}}<p>Status: {{.OrderStatus}}</p>{{end}}
  </main>
</body>
</html>
`))

type redirectView struct {
	Outcome         string
	MerchantOrderID string
	Amount          string
	OrderStatus     string
}

// handleRedirect verifies the browser-return parameters and renders a status
// page. It never mutates order state: the webhook is the authoritative path
// and may land before, after, or never relative to this request.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	start := s.nowFn()
	params := r.URL.Query()

	outcome, verifyErr := s.classifyRedirect(params)

	view := redirectView{
		Outcome:         outcome,
		MerchantOrderID: strings.TrimSpace(params.Get("merchant_order_id")),
	}

	status := http.StatusOK
	if verifyErr != nil {
		// Secret misconfiguration: nothing can ever verify, so answer in the
		// 5xx range while still rendering a harmless page.
		s.logger.Error("redirect verification unavailable", slog.String("error", verifyErr.Error()))
		status = http.StatusInternalServerError
	}

	if outcome != redirectInvalid {
		order, err := s.orders.FindByNumber(r.Context(), view.MerchantOrderID)
		switch {
		case err == nil:
			view.Amount = formatAmount(order.AmountCents, order.Currency)
			view.OrderStatus = order.Status
		case errors.Is(err, orders.ErrNotFound):
			// Degrade to the bare merchant order id; the page still renders.
		default:
			s.logger.Warn("redirect order lookup failed",
				slog.String("merchant_order_id", view.MerchantOrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.metrics.ObserveRedirect(outcome, s.nowFn().Sub(start))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := redirectPage.Execute(w, view); err != nil {
		s.logger.Error("render redirect page", slog.String("error", err.Error()))
	}
}

// classifyRedirect applies the outcome priority: unverifiable input is
// invalid before any crypto runs, a bad signature is invalid regardless of
// what the flags claim, and only then do the flags matter.
func (s *Server) classifyRedirect(params url.Values) (string, error) {
	signature := strings.TrimSpace(params.Get("hmac"))
	if signature == "" || strings.TrimSpace(params.Get("merchant_order_id")) == "" {
		return redirectInvalid, nil
	}

	tx := reassembleTransaction(params)
	trusted, err := s.verifier.Verify(tx, signature, paymob.ScopeRedirect)
	if err != nil {
		return redirectInvalid, err
	}
	if !trusted {
		s.metrics.RecordSignatureFailure()
		return redirectInvalid, nil
	}

	switch {
	case paymob.Flag(tx, "success"):
		return redirectSuccess, nil
	case paymob.Flag(tx, "pending"):
		return redirectPending, nil
	default:
		return redirectFailed, nil
	}
}

// reassembleTransaction rebuilds a transaction-shaped tree from the
// flattened query parameters. Only the signed field set is materialized;
// each dotted path also accepts the pre-flattened underscore spelling
// (source_data.pan or source_data_pan) as a fallback.
func reassembleTransaction(params url.Values) paymob.Transaction {
	tx := paymob.Transaction{}
	for _, path := range paymob.RedirectFields {
		value, ok := lookupParam(params, path)
		if !ok {
			continue
		}
		insertPath(tx, path, value)
	}
	return tx
}

func lookupParam(params url.Values, path string) (string, bool) {
	if params.Has(path) {
		return params.Get(path), true
	}
	flattened := strings.ReplaceAll(path, ".", "_")
	if flattened != path && params.Has(flattened) {
		return params.Get(flattened), true
	}
	return "", false
}

func insertPath(tx paymob.Transaction, path, value string) {
	segments := strings.Split(path, ".")
	node := map[string]any(tx)
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

func formatAmount(cents int64, currency string) string {
	if cents <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.TrimSpace(currency))
}
