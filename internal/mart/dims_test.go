package mart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

func stagedRecall(mk, mdl string, year int, comp string) model.StagedRecall {
	r := model.StagedRecall{Make: model.String(mk), Model: model.String(mdl)}
	if year != 0 {
		r.ModelYear = model.Int(year)
	}
	if comp != "" {
		r.ComponentNorm = model.String(comp)
	}
	return r
}

func stagedComplaint(mk, mdl string, year int, comp string) model.StagedComplaint {
	c := model.StagedComplaint{Make: model.String(mk), Model: model.String(mdl)}
	if year != 0 {
		c.ModelYear = model.Int(year)
	}
	if comp != "" {
		c.ComponentNorm = model.String(comp)
	}
	return c
}

func TestBuildVehicleDim_UnionAndDedup(t *testing.T) {
	recalls := []model.StagedRecall{
		stagedRecall("TESLA", "Model 3", 2024, ""),
		stagedRecall("TESLA", "Model 3", 2024, ""), // duplicate tuple
		stagedRecall("TESLA", "Model Y", 2023, ""),
	}
	complaints := []model.StagedComplaint{
		stagedComplaint("TESLA", "Model 3", 2024, ""), // same tuple from other kind
		stagedComplaint("FORD", "F-150", 2022, ""),
	}

	dims := BuildVehicleDim(recalls, complaints)
	require.Len(t, dims, 3)

	keys := make(map[string]bool, len(dims))
	for _, d := range dims {
		assert.NotEmpty(t, d.Key)
		assert.False(t, keys[d.Key], "dimension keys must be unique")
		keys[d.Key] = true
	}
}

func TestBuildVehicleDim_AbsentMakeExcluded(t *testing.T) {
	recalls := []model.StagedRecall{
		{Model: model.String("Model 3")}, // no make
	}
	dims := BuildVehicleDim(recalls, nil)
	assert.Empty(t, dims)
}

func TestBuildVehicleDim_SameTupleSameKeyAcrossKinds(t *testing.T) {
	recalls := []model.StagedRecall{stagedRecall("HONDA", "Civic", 2021, "")}
	complaints := []model.StagedComplaint{stagedComplaint("HONDA", "Civic", 2021, "")}

	dims := BuildVehicleDim(recalls, complaints)
	require.Len(t, dims, 1)
	assert.Equal(t, "HONDA", dims[0].Make)
	assert.Equal(t, VehicleKey(model.String("HONDA"), model.String("Civic"), model.Int(2021)), dims[0].Key)
}

func TestBuildComponentDim(t *testing.T) {
	recalls := []model.StagedRecall{
		stagedRecall("TESLA", "Model 3", 2024, "brakes"),
		stagedRecall("TESLA", "Model 3", 2024, ""), // absent component ignored
	}
	complaints := []model.StagedComplaint{
		stagedComplaint("TESLA", "Model 3", 2024, "brakes"), // duplicate value
		stagedComplaint("TESLA", "Model 3", 2024, "steering"),
	}

	dims := BuildComponentDim(recalls, complaints)
	require.Len(t, dims, 2)

	names := []string{dims[0].Name, dims[1].Name}
	assert.ElementsMatch(t, []string{"brakes", "steering"}, names)
	for _, d := range dims {
		assert.NotEmpty(t, d.Key)
	}
}

func TestBuildDims_DeterministicOrder(t *testing.T) {
	recalls := []model.StagedRecall{
		stagedRecall("TESLA", "Model 3", 2024, "brakes"),
		stagedRecall("FORD", "F-150", 2022, "steering"),
		stagedRecall("HONDA", "Civic", 2021, "air bags"),
	}

	first := BuildVehicleDim(recalls, nil)
	second := BuildVehicleDim(recalls, nil)
	assert.Equal(t, first, second)

	cfirst := BuildComponentDim(recalls, nil)
	csecond := BuildComponentDim(recalls, nil)
	assert.Equal(t, cfirst, csecond)
}
