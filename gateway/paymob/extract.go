package paymob

import "strings"

// Extract resolves a dotted field path against the transaction and returns the
// stable string form of the value found there. A missing or null segment
// anywhere along the path short-circuits to the empty string, which is also
// what the gateway contributes for absent optional fields when it signs.
func Extract(tx Transaction, path string) string {
	var current any = map[string]any(tx)
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = node[segment]
		if !ok || current == nil {
			return ""
		}
	}
	return stringify(current)
}

// Flag reports whether the field at path carries the literal true value,
// whether it arrived as a JSON boolean or as the query-string text "true".
func Flag(tx Transaction, path string) bool {
	return Extract(tx, path) == "true"
}

// SigningString concatenates the extracted values for each path, in list
// order, with no separator. The identical transaction and path list always
// produce the identical string; the order of paths is part of the gateway
// contract and is never re-sorted here.
func SigningString(tx Transaction, paths []string) string {
	var builder strings.Builder
	for _, path := range paths {
		builder.WriteString(Extract(tx, path))
	}
	return builder.String()
}
