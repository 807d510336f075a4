package report

import (
	"github.com/nicktill/techboard/pkg/aggregate"
	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
)

// Technician table columns.
const (
	ColID             = "id"
	ColTechID         = "tech_id"
	ColNationalID     = "national_id"
	ColFullName       = "full_name"
	ColProvider       = "provider"
	ColRSM            = "rsm"
	ColArea           = "area"
	ColRegionCode     = "region_code"
	ColDepotCode      = "depot_code"
	ColWorkType       = "work_type"
	ColStatus         = "status"
	ColGender         = "gender"
	ColDegree         = "degree"
	ColTrainingPassed = "training_passed"
	ColCardIssued     = "card_issued"
	ColUpdatedAt      = "updated_at"
)

// TechnicianColumns lists every column of the technician table in display order.
var TechnicianColumns = []string{
	ColID, ColTechID, ColNationalID, ColFullName, ColProvider, ColRSM, ColArea,
	ColRegionCode, ColDepotCode, ColWorkType, ColStatus, ColGender, ColDegree,
	ColTrainingPassed, ColCardIssued, ColUpdatedAt,
}

// TechnicianFilters declares the filter parameters shared by reports and the
// listing endpoint.
var TechnicianFilters = filter.Declarations{
	Params: []filter.Param{
		{Name: "provider", Column: ColProvider, Mode: filter.Exact},
		{Name: "rsm", Column: ColRSM, Mode: filter.Exact},
		{Name: "area", Column: ColArea, Mode: filter.Exact},
		{Name: "region_code", Column: ColRegionCode, Mode: filter.Exact},
		{Name: "depot_code", Column: ColDepotCode, Mode: filter.Exact},
		{Name: "work_type", Column: ColWorkType, Mode: filter.Exact},
		{Name: "status", Column: ColStatus, Mode: filter.Exact},
		{Name: "gender", Column: ColGender, Mode: filter.Exact},
		{Name: "degree", Column: ColDegree, Mode: filter.Exact},
		{Name: "f_national_id", Column: ColNationalID, Mode: filter.Partial},
		{Name: "f_tech_id", Column: ColTechID, Mode: filter.Partial},
	},
	SearchParam:   "q",
	SearchColumns: []string{ColTechID, ColNationalID, ColFullName, ColRSM, ColArea, ColDepotCode},
}

// Check declares one reconciliation: the aggregated figure is the overall
// distinct entity count, or the entities of Metric/Category when set. The
// authoritative figure is a head count with Terms added to the request filter.
type Check struct {
	Dimension string
	Metric    string
	Category  string
	Terms     []filter.Term
}

// Definition configures one report run through the shared pipeline.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Columns fetched for the report; the entity column must be included.
	Columns     []string       `json:"-"`
	Aggregation aggregate.Spec `json:"-"`

	// The top-level breakdown lists either the categories of BreakdownMetric
	// or the buckets of BreakdownGroup.
	BreakdownMetric string `json:"-"`
	BreakdownGroup  string `json:"-"`

	// GroupsFrom renders per-bucket breakdowns of GroupMetric.
	GroupsFrom  string `json:"-"`
	GroupMetric string `json:"-"`

	Checks []Check `json:"-"`
	// Debug embeds diagnostics in every response.
	Debug bool `json:"debug"`
}

// Catalog returns the built-in reports, using cats for closed category sets.
func Catalog(cats config.Categories) []*Definition {
	choices := cats.YesNo()
	yesNoCats := make([]aggregate.Category, len(choices))
	for i, c := range choices {
		yesNoCats[i] = aggregate.Category{Label: c.Label, Spellings: c.Spellings}
	}
	yesNo := aggregate.Closed(yesNoCats...)
	providers := make([]aggregate.Category, len(cats.Providers))
	for i, p := range cats.Providers {
		providers[i] = aggregate.Category{Label: p}
	}
	providerSet := aggregate.Closed(providers...)

	byProvider := aggregate.Grouping{Name: "provider", Dimensions: []string{ColProvider}}
	total := Check{Dimension: "total"}
	yesNoChecks := func(metric, column string) []Check {
		checks := []Check{total}
		for _, c := range choices {
			checks = append(checks, Check{
				Dimension: c.Label,
				Metric:    metric,
				Category:  c.Label,
				Terms:     []filter.Term{{Column: column, Mode: filter.Exact, Value: c.Label}},
			})
		}
		return checks
	}
	openReport := func(name, description, column, groupBy string) *Definition {
		d := &Definition{
			Name:        name,
			Description: description,
			Columns:     []string{ColNationalID, column},
			Aggregation: aggregate.Spec{
				EntityColumn: ColNationalID,
				Metrics:      []aggregate.Metric{{Name: name, Column: column}},
			},
			BreakdownMetric: name,
			Checks:          []Check{total},
		}
		if groupBy != "" {
			d.Columns = append(d.Columns, groupBy)
			d.Aggregation.Groupings = []aggregate.Grouping{{Name: groupBy, Dimensions: []string{groupBy}}}
			d.GroupsFrom = groupBy
			d.GroupMetric = name
		}
		return d
	}

	return []*Definition{
		{
			Name:        "providers",
			Description: "Technicians per provider",
			Columns:     []string{ColNationalID, ColProvider},
			Aggregation: aggregate.Spec{
				EntityColumn: ColNationalID,
				Metrics:      []aggregate.Metric{{Name: "provider", Column: ColProvider, Categorizer: providerSet}},
			},
			BreakdownMetric: "provider",
			Checks:          []Check{total},
		},
		{
			Name:        "training",
			Description: "Training completion per provider",
			Columns:     []string{ColNationalID, ColProvider, ColTrainingPassed},
			Aggregation: aggregate.Spec{
				EntityColumn: ColNationalID,
				Groupings:    []aggregate.Grouping{byProvider},
				Metrics:      []aggregate.Metric{{Name: "training", Column: ColTrainingPassed, Categorizer: yesNo}},
			},
			BreakdownMetric: "training",
			GroupsFrom:      "provider",
			GroupMetric:     "training",
			Checks:          yesNoChecks("training", ColTrainingPassed),
			Debug:           true,
		},
		{
			Name:        "card-status",
			Description: "Access card issuance per provider",
			Columns:     []string{ColNationalID, ColProvider, ColCardIssued},
			Aggregation: aggregate.Spec{
				EntityColumn: ColNationalID,
				Groupings:    []aggregate.Grouping{byProvider},
				Metrics:      []aggregate.Metric{{Name: "card", Column: ColCardIssued, Categorizer: yesNo}},
			},
			BreakdownMetric: "card",
			GroupsFrom:      "provider",
			GroupMetric:     "card",
			Checks:          yesNoChecks("card", ColCardIssued),
		},
		{
			Name:        "region-provider",
			Description: "Technicians per region and provider, managed regions only",
			Columns:     []string{ColNationalID, ColRegionCode, ColProvider, ColRSM, ColTrainingPassed},
			Aggregation: aggregate.Spec{
				EntityColumn: ColNationalID,
				Groupings: []aggregate.Grouping{{
					Name:       "region_provider",
					Dimensions: []string{ColRegionCode, ColProvider},
					Require:    []string{ColRSM},
				}},
				Metrics: []aggregate.Metric{{Name: "training", Column: ColTrainingPassed, Categorizer: yesNo}},
			},
			BreakdownGroup: "region_provider",
			GroupsFrom:     "region_provider",
			GroupMetric:    "training",
			Checks:         []Check{total},
			Debug:          true,
		},
		openReport("gender", "Technicians by gender", ColGender, ""),
		openReport("degree", "Technicians by degree", ColDegree, ""),
		openReport("work-type", "Work types per area", ColWorkType, ColArea),
		openReport("status", "Technician status per provider", ColStatus, ColProvider),
	}
}
