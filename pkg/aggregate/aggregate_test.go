package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/techboard/pkg/record"
)

var yesNo = Closed(
	Category{Label: "Yes", Spellings: []string{"Y"}},
	Category{Label: "No", Spellings: []string{"N"}},
)

func trainingSpec() Spec {
	return Spec{
		EntityColumn: "national_id",
		Groupings: []Grouping{
			{Name: "provider", Dimensions: []string{"provider"}},
			{Name: "region_provider", Dimensions: []string{"region_code", "provider"}, Require: []string{"rsm"}},
		},
		Metrics: []Metric{
			{Name: "training", Column: "training_passed", Categorizer: yesNo},
		},
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		present bool
	}{
		{"  1234567890123 ", "1234567890123", true},
		{"", "", false},
		{"   ", "", false},
		{"null", "", false},
		{"NULL", "", false},
		{" Undefined ", "", false},
		{"Nullable", "Nullable", true},
		{"MixedCase", "MixedCase", true},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if got != tc.want || ok != tc.present {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.present)
		}
	}
}

func TestDuplicateEntityAcrossBatches(t *testing.T) {
	batch1 := []record.Row{{"national_id": "1234567890123", "provider": "Nokia", "training_passed": "Yes"}}
	batch2 := []record.Row{{"national_id": "1234567890123 ", "provider": "Nokia", "training_passed": "yes"}}
	rows := append(batch1, batch2...)

	res := Aggregate(rows, trainingSpec())

	require.Equal(t, 2, res.RowsConsidered)
	require.Equal(t, 2, res.Overall.Rows)
	require.Equal(t, 1, res.Overall.Entities())
	require.Equal(t, 1, res.Overall.Count("training", "Yes"))
	require.Equal(t, 1, res.Group("provider").Bucket("Nokia").Entities())
}

func TestCategoryMatching(t *testing.T) {
	rows := []record.Row{
		{"national_id": "1", "training_passed": "yes "},
		{"national_id": "2", "training_passed": "Y"},
		{"national_id": "3", "training_passed": "n"},
		{"national_id": "4", "training_passed": "Maybe"},
		{"national_id": "5", "training_passed": nil},
		{"national_id": "6", "training_passed": "null"},
	}

	res := Aggregate(rows, trainingSpec())

	require.Equal(t, 6, res.RowsConsidered)
	require.Equal(t, 0, res.RowsSkipped)
	require.Equal(t, 6, res.Overall.Entities())
	require.Equal(t, 2, res.Overall.Count("training", "Yes"))
	require.Equal(t, 1, res.Overall.Count("training", "No"))
	require.Equal(t, 3, res.Overall.Categorized("training"))
	require.Equal(t, 1, res.Overall.Uncategorized("training"), "only Maybe is out of domain; absent values are not")
	require.Equal(t, []CategoryCount{{"Yes", 2}, {"No", 1}}, res.Overall.Counts("training"))
}

func TestAbsentEntitySkipped(t *testing.T) {
	rows := []record.Row{
		{"national_id": "", "provider": "Nokia"},
		{"national_id": "undefined", "provider": "Nokia"},
		{"provider": "Nokia"},
		{"national_id": "7", "provider": "Nokia"},
	}

	res := Aggregate(rows, trainingSpec())
	require.Equal(t, 4, res.RowsConsidered)
	require.Equal(t, 3, res.RowsSkipped)
	require.Equal(t, 1, res.Overall.Entities())
}

func TestGroupingRequiresJointPresence(t *testing.T) {
	rows := []record.Row{
		{"national_id": "1", "region_code": "R1", "provider": "Nokia", "rsm": "Karim"},
		{"national_id": "2", "region_code": "R1", "provider": "Nokia", "rsm": ""},
		{"national_id": "3", "region_code": "", "provider": "Nokia", "rsm": "Karim"},
		{"national_id": "4", "region_code": "R2", "provider": "ZTE", "rsm": "Lina"},
	}

	res := Aggregate(rows, trainingSpec())

	pivot := res.Group("region_provider")
	require.Len(t, pivot.Buckets, 2)
	require.Equal(t, GroupKey{"R1", "Nokia"}, pivot.Buckets[0].Key)
	require.Equal(t, 1, pivot.Bucket("R1", "Nokia").Entities())
	require.True(t, pivot.Bucket("R1", "Nokia").Has("1"))
	require.Nil(t, pivot.Bucket("", "Nokia"))

	// Rows missing rsm or region still count in groupings that do not need them.
	require.Equal(t, 3, res.Group("provider").Bucket("Nokia").Entities())
	require.Equal(t, 4, res.Overall.Entities())
}

func TestSpecRequireSkipsRow(t *testing.T) {
	spec := trainingSpec()
	spec.Require = []string{"rsm"}

	rows := []record.Row{
		{"national_id": "1", "rsm": "Karim"},
		{"national_id": "2", "rsm": " null "},
	}
	res := Aggregate(rows, spec)
	require.Equal(t, 1, res.RowsSkipped)
	require.Equal(t, 1, res.Overall.Entities())
}

func TestCategoryChangeBetweenBatches(t *testing.T) {
	rows := []record.Row{
		{"national_id": "1", "training_passed": "No"},
		{"national_id": "1", "training_passed": "Yes"},
	}
	res := Aggregate(rows, trainingSpec())

	require.Equal(t, 1, res.Overall.Count("training", "No"))
	require.Equal(t, 1, res.Overall.Count("training", "Yes"))
	require.Equal(t, 1, res.Overall.Categorized("training"))
	require.Equal(t, 1, res.Overall.Entities())
}

func TestAggregateIsIdempotent(t *testing.T) {
	rows := []record.Row{
		{"national_id": "1", "region_code": "R1", "provider": "Nokia", "rsm": "K", "training_passed": "Y"},
		{"national_id": "2", "region_code": "R1", "provider": "ZTE", "rsm": "K", "training_passed": "N"},
		{"national_id": "1", "region_code": "R1", "provider": "Nokia", "rsm": "K", "training_passed": "yes"},
		{"national_id": "3", "region_code": "R2", "provider": "Nokia", "rsm": "L", "training_passed": "Maybe"},
	}

	first := Aggregate(rows, trainingSpec())
	second := Aggregate(rows, trainingSpec())
	require.Equal(t, first, second)
}

func TestOpenCategorizer(t *testing.T) {
	spec := Spec{
		EntityColumn: "id",
		Metrics:      []Metric{{Name: "status", Column: "status"}},
	}
	rows := []record.Row{
		{"id": 1, "status": "Active"},
		{"id": 2, "status": "Suspended"},
		{"id": 3, "status": "Active"},
	}
	res := Aggregate(rows, spec)
	require.Equal(t, []CategoryCount{{"Active", 2}, {"Suspended", 1}}, res.Overall.Counts("status"))
}

func TestClosedSetFirstClaimWins(t *testing.T) {
	s := Closed(
		Category{Label: "Yes", Spellings: []string{"ok"}},
		Category{Label: "No", Spellings: []string{"OK"}},
	)
	label, ok := s.Categorize("Ok")
	require.True(t, ok)
	require.Equal(t, "Yes", label)
	require.Equal(t, []string{"Yes", "No"}, s.Labels())
}
