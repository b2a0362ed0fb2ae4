package mart

import (
	"sort"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// BuildVehicleDim derives the vehicle dimension from the union of staged
// recall and complaint records. Tuples are taken by value where make is
// present and deduplicated by the full (make, model, model_year) tuple;
// the content hash is the surrogate key, so key equality is tuple equality.
func BuildVehicleDim(recalls []model.StagedRecall, complaints []model.StagedComplaint) []model.VehicleDim {
	seen := make(map[string]model.VehicleDim)

	add := func(mk, mdl *string, year *int) {
		if mk == nil {
			return
		}
		key := VehicleKey(mk, mdl, year)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = model.VehicleDim{Key: key, Make: *mk, Model: mdl, ModelYear: year}
	}

	for _, r := range recalls {
		add(r.Make, r.Model, r.ModelYear)
	}
	for _, c := range complaints {
		add(c.Make, c.Model, c.ModelYear)
	}

	return sortedVehicles(seen)
}

// BuildComponentDim derives the component dimension from the union of
// distinct non-absent normalized component values across both kinds.
func BuildComponentDim(recalls []model.StagedRecall, complaints []model.StagedComplaint) []model.ComponentDim {
	seen := make(map[string]model.ComponentDim)

	add := func(norm *string) {
		if norm == nil {
			return
		}
		key := ComponentKey(norm)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = model.ComponentDim{Key: key, Name: *norm}
	}

	for _, r := range recalls {
		add(r.ComponentNorm)
	}
	for _, c := range complaints {
		add(c.ComponentNorm)
	}

	dims := make([]model.ComponentDim, 0, len(seen))
	for _, d := range seen {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].Key < dims[j].Key })
	return dims
}

func sortedVehicles(m map[string]model.VehicleDim) []model.VehicleDim {
	dims := make([]model.VehicleDim, 0, len(m))
	for _, d := range m {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].Key < dims[j].Key })
	return dims
}
