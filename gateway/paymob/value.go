package paymob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Transaction is a gateway transaction record as delivered on the wire. It is
// attacker-controlled and stays untyped until a signature over it has been
// verified; callers must never act on its contents before Verify succeeds.
type Transaction map[string]any

// ParseTransaction decodes a raw JSON object into a Transaction.
func ParseTransaction(raw []byte) (Transaction, error) {
	decoded := map[string]any{}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	return Transaction(decoded), nil
}

// stringify renders a transaction value exactly the way the gateway renders it
// when building its signing string: absent and null values contribute nothing,
// booleans and numbers render as their literal text form, nested structures
// fall back to their JSON encoding. It never panics on unexpected shapes.
func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case json.Number:
		return value.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", value)
	}
}
