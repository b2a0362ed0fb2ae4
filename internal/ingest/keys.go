package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// field returns the first present value among the given keys, stringified
// and trimmed. Source records arrive with inconsistent field casing
// depending on the upstream API, so lookups accept variants.
func field(r map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RecallPK derives the deterministic primary key for a raw recall record.
// The NHTSA campaign id is preferred; records without one fall back to a
// hash of the stable fields.
func RecallPK(r map[string]any) string {
	if id := field(r, "nhtsa_id", "NHTSA_ID"); id != "" {
		return "nhtsa:" + id
	}

	manufacturer := strings.ToUpper(field(r, "manufacturer", "make"))
	component := strings.ToUpper(field(r, "component"))
	reportDate := field(r, "report_received_date", "report_date")
	subject := field(r, "subject")

	base := strings.Join([]string{manufacturer, component, reportDate, subject}, "|")
	return "hash:" + sha256Hex(base)
}

// ComplaintPK derives the deterministic primary key for a raw complaint
// record. The ODI number is preferred when present.
func ComplaintPK(r map[string]any) string {
	if odi := field(r, "ODINumber", "odi_number", "odiNumber", "complaint_number"); odi != "" {
		return "odi:" + odi
	}

	mk := strings.ToUpper(field(r, "Make", "make"))
	mdl := strings.ToUpper(field(r, "Model", "model"))
	year := field(r, "ModelYear", "model_year", "Year")
	comp := strings.ToUpper(field(r, "Component", "component"))
	received := field(r, "DateReceived", "date_received")
	summary := field(r, "Summary", "summary", "Description")

	base := strings.Join([]string{mk, mdl, year, comp, received, summary}, "|")
	return "hash:" + sha256Hex(base)
}
