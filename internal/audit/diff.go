package audit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ignoredFields are never diffed: envelope identifiers, timestamps,
// version markers, credentials, foreign-key references, and raw upload
// payloads. fileUrl is intentionally absent so attachment changes are
// still tracked.
var ignoredFields = map[string]struct{}{
	"_id":       {},
	"id":        {},
	"updatedAt": {},
	"createdAt": {},
	"__v":       {},
	"password":  {},
	"user":      {},
	"issuer":    {},
	"ticket":    {},
	"file":      {},
}

// idFields is the probe order for a record's display identifier: the
// per-type serial fields first, then the generic fallbacks.
var idFields = []string{
	"identifier",
	"purchasingId",
	"collectingId",
	"voucherNumber",
	"assetId",
	"username",
	"id",
	"_id",
}

// normalize renders a field value for comparison: nil becomes "", numbers
// lose their float formatting artifacts, everything is trimmed.
func normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode as float64; keep integral values free of
		// exponent notation so 10000000 does not diff as "1e+07".
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// orEmpty substitutes the placeholder shown for blank values.
func orEmpty(s string) string {
	if s == "" {
		return "Empty"
	}
	return s
}

// Diff compares two document snapshots field by field and renders the
// changes as `field: old -> new` segments joined by " | ". Returns ""
// when nothing observable changed.
func Diff(oldDoc, newDoc map[string]any) string {
	keys := make([]string, 0, len(oldDoc)+len(newDoc))
	seen := make(map[string]struct{}, len(oldDoc)+len(newDoc))
	for k := range oldDoc {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range newDoc {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		if _, skip := ignoredFields[k]; skip {
			continue
		}
		oldVal := normalize(oldDoc[k])
		newVal := normalize(newDoc[k])
		if oldVal == newVal {
			continue
		}
		diffs = append(diffs, fmt.Sprintf("%s: %s -> %s", k, orEmpty(oldVal), orEmpty(newVal)))
	}
	return strings.Join(diffs, " | ")
}

// FindID probes a document for its display identifier. Returns "" when
// none of the candidate fields holds a non-empty value.
func FindID(doc map[string]any) string {
	for _, field := range idFields {
		if v := normalize(doc[field]); v != "" {
			return v
		}
	}
	return ""
}
