// Package staging turns raw ingested records into typed, deduplicated,
// field-normalized records. Every function here is a pure transform: running
// it twice over the same raw input yields identical output.
package staging

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// CastError reports a raw field that could not be coerced to its typed form.
// It is fatal to the run: no staged output is committed past a CastError.
type CastError struct {
	Kind  string
	PK    string
	Field string
	Value string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("staging: cast %s %q field %s: invalid value %q", e.Kind, e.PK, e.Field, e.Value)
}

var wsRun = regexp.MustCompile(`\s+`)

// NormalizeComponent lower-cases component text and collapses any run of
// whitespace to a single space. Text is NFC-folded first so visually
// identical inputs with different codepoint sequences normalize alike.
func NormalizeComponent(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return wsRun.ReplaceAllString(s, " ")
}

// cleanString trims p and converts empty strings to absent.
func cleanString(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// castYear parses a raw model-year field. Absent or blank input stays
// absent; anything else must be an integer.
func castYear(kind, pk string, p *string) (*int, error) {
	p = cleanString(p)
	if p == nil {
		return nil, nil
	}
	y, err := strconv.Atoi(*p)
	if err != nil {
		return nil, &CastError{Kind: kind, PK: pk, Field: "model_year", Value: *p}
	}
	return &y, nil
}

// componentFields returns the raw and normalized component representations.
func componentFields(p *string) (raw, normed *string) {
	raw = cleanString(p)
	if raw == nil {
		return nil, nil
	}
	n := NormalizeComponent(*raw)
	if n == "" {
		return raw, nil
	}
	return raw, &n
}

// StageRecalls normalizes and deduplicates raw recall records. Exactly one
// staged record survives per primary key: the one with the latest ingestion
// timestamp, ties broken by payload bytes so the result does not depend on
// input order.
func StageRecalls(raws []model.RawRecall) ([]model.StagedRecall, error) {
	latest := make(map[string]model.RawRecall, len(raws))
	for _, r := range raws {
		best, ok := latest[r.PK]
		if !ok || supersedes(r.IngestedAt, r.Payload, best.IngestedAt, best.Payload) {
			latest[r.PK] = r
		}
	}

	keys := sortedKeys(latest)
	staged := make([]model.StagedRecall, 0, len(keys))
	for _, pk := range keys {
		r := latest[pk]
		year, err := castYear(model.KindRecall, r.PK, r.ModelYear)
		if err != nil {
			return nil, err
		}
		compRaw, compNorm := componentFields(r.Component)
		staged = append(staged, model.StagedRecall{
			PK:            r.PK,
			Source:        r.Source,
			SourceID:      cleanString(r.SourceID),
			Make:          cleanString(r.Make),
			Model:         cleanString(r.Model),
			ModelYear:     year,
			ComponentRaw:  compRaw,
			ComponentNorm: compNorm,
			ReportDate:    r.ReportDate,
			IngestedAt:    r.IngestedAt,
		})
	}
	return staged, nil
}

// StageComplaints normalizes and deduplicates raw complaint records under
// the same rules as StageRecalls.
func StageComplaints(raws []model.RawComplaint) ([]model.StagedComplaint, error) {
	latest := make(map[string]model.RawComplaint, len(raws))
	for _, r := range raws {
		best, ok := latest[r.PK]
		if !ok || supersedes(r.IngestedAt, r.Payload, best.IngestedAt, best.Payload) {
			latest[r.PK] = r
		}
	}

	keys := sortedKeys(latest)
	staged := make([]model.StagedComplaint, 0, len(keys))
	for _, pk := range keys {
		r := latest[pk]
		year, err := castYear(model.KindComplaint, r.PK, r.ModelYear)
		if err != nil {
			return nil, err
		}
		compRaw, compNorm := componentFields(r.Component)
		staged = append(staged, model.StagedComplaint{
			PK:            r.PK,
			Source:        r.Source,
			SourceID:      cleanString(r.SourceID),
			ODINumber:     cleanString(r.ODINumber),
			Make:          cleanString(r.Make),
			Model:         cleanString(r.Model),
			ModelYear:     year,
			ComponentRaw:  compRaw,
			ComponentNorm: compNorm,
			IncidentDate:  r.IncidentDate,
			ReceivedDate:  r.ReceivedDate,
			State:         cleanString(r.State),
			IngestedAt:    r.IngestedAt,
		})
	}
	return staged, nil
}

// supersedes reports whether a record with ingestion timestamp ta and
// payload pa wins over the current group best (tb, pb). Later ingestion
// wins; equal timestamps fall back to byte order of the payload so the
// choice is deterministic regardless of scan order.
func supersedes(ta time.Time, pa []byte, tb time.Time, pb []byte) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return bytes.Compare(pa, pb) > 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
