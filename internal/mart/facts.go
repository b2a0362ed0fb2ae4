package mart

import (
	"fmt"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// JoinMismatchError reports a fact whose derived dimension key has no
// matching dimension row. It indicates a logic error: the dimension builder
// must run over the same staged input before facts are built.
type JoinMismatchError struct {
	Kind      string
	PK        string
	Dimension string
	Key       string
}

func (e *JoinMismatchError) Error() string {
	return fmt.Sprintf("mart: %s fact %q: derived %s key %s has no dimension row", e.Kind, e.PK, e.Dimension, e.Key)
}

// BuildRecallFacts produces one fact per staged recall with a present report
// date. Records without a report date are filtered, not errors. Keys are
// derived with the same encoding the dimension builder uses; a record whose
// make or component is present but whose key is missing from the dimensions
// fails the run.
func BuildRecallFacts(staged []model.StagedRecall, vehicles []model.VehicleDim, components []model.ComponentDim) ([]model.RecallFact, error) {
	vset, cset := keySets(vehicles, components)

	facts := make([]model.RecallFact, 0, len(staged))
	for _, r := range staged {
		if r.ReportDate == nil {
			continue
		}
		vkey := VehicleKey(r.Make, r.Model, r.ModelYear)
		ckey := ComponentKey(r.ComponentNorm)
		if err := checkJoin(model.KindRecall, r.PK, r.Make != nil, vset[vkey], "vehicle", vkey); err != nil {
			return nil, err
		}
		if err := checkJoin(model.KindRecall, r.PK, r.ComponentNorm != nil, cset[ckey], "component", ckey); err != nil {
			return nil, err
		}
		facts = append(facts, model.RecallFact{
			RecallPK:     r.PK,
			VehicleKey:   vkey,
			ComponentKey: ckey,
			Date:         *r.ReportDate,
		})
	}
	return facts, nil
}

// BuildComplaintFacts produces one fact per staged complaint with a present
// received date, carrying state and ODI number through.
func BuildComplaintFacts(staged []model.StagedComplaint, vehicles []model.VehicleDim, components []model.ComponentDim) ([]model.ComplaintFact, error) {
	vset, cset := keySets(vehicles, components)

	facts := make([]model.ComplaintFact, 0, len(staged))
	for _, c := range staged {
		if c.ReceivedDate == nil {
			continue
		}
		vkey := VehicleKey(c.Make, c.Model, c.ModelYear)
		ckey := ComponentKey(c.ComponentNorm)
		if err := checkJoin(model.KindComplaint, c.PK, c.Make != nil, vset[vkey], "vehicle", vkey); err != nil {
			return nil, err
		}
		if err := checkJoin(model.KindComplaint, c.PK, c.ComponentNorm != nil, cset[ckey], "component", ckey); err != nil {
			return nil, err
		}
		facts = append(facts, model.ComplaintFact{
			ComplaintPK:  c.PK,
			VehicleKey:   vkey,
			ComponentKey: ckey,
			Date:         *c.ReceivedDate,
			State:        c.State,
			ODINumber:    c.ODINumber,
		})
	}
	return facts, nil
}

// checkJoin validates dimension membership for keys that should exist. The
// dimensions only carry rows for present source fields, so a key derived
// from absent fields is legitimately unmatched.
func checkJoin(kind, pk string, fieldPresent, inDim bool, dimension, key string) error {
	if fieldPresent && !inDim {
		return &JoinMismatchError{Kind: kind, PK: pk, Dimension: dimension, Key: key}
	}
	return nil
}

func keySets(vehicles []model.VehicleDim, components []model.ComponentDim) (map[string]bool, map[string]bool) {
	vset := make(map[string]bool, len(vehicles))
	for _, v := range vehicles {
		vset[v.Key] = true
	}
	cset := make(map[string]bool, len(components))
	for _, c := range components {
		cset[c.Key] = true
	}
	return vset, cset
}
