// Package mart builds the dimensional model: vehicle and component
// dimensions, recall and complaint facts, and the daily rollup with
// trailing-window metrics.
package mart

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// encodeFields serializes fields with a length prefix per field so value
// bytes can never shift across field boundaries: ("AB","C") and ("A","BC")
// encode differently. Absent fields encode as length zero, which no real
// value can produce.
func encodeFields(fields ...*string) []byte {
	var buf []byte
	for _, f := range fields {
		if f == nil {
			buf = append(buf, '0', ':', '|')
			continue
		}
		buf = strconv.AppendInt(buf, int64(len(*f)), 10)
		buf = append(buf, ':')
		buf = append(buf, *f...)
		buf = append(buf, '|')
	}
	return buf
}

func hashKey(prefix string, fields ...*string) string {
	sum := sha256.Sum256(encodeFields(fields...))
	return prefix + hex.EncodeToString(sum[:])
}

// VehicleKey derives the content-addressed surrogate key for a
// (make, model, model_year) tuple. Absent fields participate as explicit
// zero-length values; the key is always computable.
func VehicleKey(mk, mdl *string, year *int) string {
	var y *string
	if year != nil {
		s := strconv.Itoa(*year)
		y = &s
	}
	return hashKey("v:", mk, mdl, y)
}

// ComponentKey derives the surrogate key for a normalized component name.
func ComponentKey(norm *string) string {
	return hashKey("c:", norm)
}
