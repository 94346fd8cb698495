package paymob

// MessageScope selects which signed field list applies to an inbound message.
type MessageScope string

const (
	// ScopeWebhook covers server-to-server transaction-processed callbacks.
	ScopeWebhook MessageScope = "webhook"
	// ScopeRedirect covers browser-return query parameters.
	ScopeRedirect MessageScope = "redirect"
)

// WebhookFields is the ordered field list the gateway signs on the
// transaction-processed webhook. The order mirrors the gateway's documented
// flattened-key ordering and must never be re-sorted: the concatenation of
// these values, in this exact order, is the HMAC input.
var WebhookFields = []string{
	"amount_cents",
	"api_source",
	"captured_amount",
	"created_at",
	"currency",
	"data.message",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refund",
	"is_refunded",
	"is_settled",
	"is_standalone_payment",
	"is_void",
	"is_voided",
	"merchant_commission",
	"order.amount_cents",
	"order.created_at",
	"order.currency",
	"order.id",
	"order.merchant_order_id",
	"order.paid_amount_cents",
	"order.payment_status",
	"order.shipping_data.city",
	"order.shipping_data.country",
	"order.shipping_data.email",
	"order.shipping_data.first_name",
	"order.shipping_data.last_name",
	"order.shipping_data.phone_number",
	"order.shipping_data.postal_code",
	"owner",
	"payment_key_claims.amount_cents",
	"payment_key_claims.billing_data.apartment",
	"payment_key_claims.billing_data.building",
	"payment_key_claims.billing_data.city",
	"payment_key_claims.billing_data.country",
	"payment_key_claims.billing_data.email",
	"payment_key_claims.billing_data.first_name",
	"payment_key_claims.billing_data.floor",
	"payment_key_claims.billing_data.last_name",
	"payment_key_claims.billing_data.phone_number",
	"payment_key_claims.billing_data.postal_code",
	"payment_key_claims.billing_data.state",
	"payment_key_claims.billing_data.street",
	"payment_key_claims.currency",
	"payment_key_claims.integration_id",
	"payment_key_claims.order_id",
	"pending",
	"profile_id",
	"refunded_amount_cents",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
	"terminal_id",
	"updated_at",
}

// RedirectFields is the shorter list signed on the browser-return redirect.
// Here "order" is the gateway's scalar order id rather than the nested order
// object the webhook carries.
var RedirectFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

func fieldsForScope(scope MessageScope) []string {
	switch scope {
	case ScopeWebhook:
		return WebhookFields
	case ScopeRedirect:
		return RedirectFields
	default:
		return nil
	}
}
