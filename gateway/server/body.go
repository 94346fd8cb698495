package server

import (
	"errors"
	"mime"
	"net/url"
	"strings"

	"spicepay/gateway/paymob"
)

var errMissingTransaction = errors.New("missing transaction object")

type bodyKind int

const (
	bodyJSON bodyKind = iota
	bodyForm
)

// callbackBody is the decoded notification payload, tagged by wire shape.
// Paymob posts JSON from its newer stack and form-encoded data from the
// legacy one; in the form case the obj field is itself a JSON document.
type callbackBody struct {
	kind bodyKind
	json paymob.Transaction
	form url.Values
}

// decodeCallbackBody dispatches on the declared content type. An absent or
// unrecognised declaration falls back to JSON, which is what the gateway
// sends when it omits the header.
func decodeCallbackBody(contentType string, raw []byte) (callbackBody, error) {
	mediaType := ""
	if strings.TrimSpace(contentType) != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = parsed
		}
	}

	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return callbackBody{}, err
		}
		return callbackBody{kind: bodyForm, form: form}, nil
	}

	decoded, err := paymob.ParseTransaction(raw)
	if err != nil {
		return callbackBody{}, err
	}
	return callbackBody{kind: bodyJSON, json: decoded}, nil
}

// transaction extracts the embedded transaction object.
func (b callbackBody) transaction() (paymob.Transaction, error) {
	switch b.kind {
	case bodyForm:
		encoded := strings.TrimSpace(b.form.Get("obj"))
		if encoded == "" {
			return nil, errMissingTransaction
		}
		tx, err := paymob.ParseTransaction([]byte(encoded))
		if err != nil {
			return nil, errMissingTransaction
		}
		return tx, nil
	default:
		obj, ok := b.json["obj"].(map[string]any)
		if !ok {
			return nil, errMissingTransaction
		}
		return paymob.Transaction(obj), nil
	}
}

// signature extracts the supplied hex digest from the body, if present.
func (b callbackBody) signature() string {
	switch b.kind {
	case bodyForm:
		return strings.TrimSpace(b.form.Get("hmac"))
	default:
		sig, _ := b.json["hmac"].(string)
		return strings.TrimSpace(sig)
	}
}
