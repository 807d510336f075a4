// Package seed fills a record store with technician rows, either generated
// or imported from a JSON dump.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/report"
)

// Options controls the shape of generated data.
type Options struct {
	// Rows is the number of distinct technicians.
	Rows int
	// DupRatio is the share of technicians written a second time with a
	// whitespace-padded national id.
	DupRatio float64
	// Seed makes the output reproducible.
	Seed int64
}

var (
	providers = []string{"Ericsson", "Huawei", "Nokia", "ZTE", "Samsung", "Acme Telecom"}
	areas     = []string{"North", "South", "East", "West", "Central"}
	workTypes = []string{"Installation", "Maintenance", "Survey", "Fiber Splicing"}
	statuses  = []string{"Active", "Suspended", "On Leave", "Terminated"}
	genders   = []string{"Male", "Female"}
	degrees   = []string{"Diploma", "Bachelor", "Master", "High School"}
	yesNo     = []string{"Yes", "No", "Y", "N", "yes", " No ", "Maybe", ""}
	firsts    = []string{"Ahmad", "Sara", "Omid", "Leila", "Reza", "Mina", "Ali", "Nasrin"}
	lasts     = []string{"Karimi", "Hosseini", "Rahimi", "Moradi", "Jafari", "Ahmadi"}
	managers  = []string{"R. Tehrani", "S. Amini", "M. Kazemi", ""}
)

// Generate returns o.Rows distinct technicians followed by the duplicates.
// Roughly one row in fifty carries a blank or "null" national id.
func Generate(o Options) []record.Row {
	r := rand.New(rand.NewSource(o.Seed))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := make([]record.Row, 0, o.Rows+int(float64(o.Rows)*o.DupRatio))
	for i := 0; i < o.Rows; i++ {
		nationalID := fmt.Sprintf("%010d", 1000000000+i)
		switch r.Intn(50) {
		case 0:
			nationalID = ""
		case 1:
			nationalID = "null"
		}
		area := areas[r.Intn(len(areas))]
		rows = append(rows, record.Row{
			report.ColTechID:         fmt.Sprintf("TEC-%06d", i+1),
			report.ColNationalID:     nationalID,
			report.ColFullName:       firsts[r.Intn(len(firsts))] + " " + lasts[r.Intn(len(lasts))],
			report.ColProvider:       pick(r, providers, 0.03),
			report.ColRSM:            managers[r.Intn(len(managers))],
			report.ColArea:           area,
			report.ColRegionCode:     fmt.Sprintf("%s-%02d", strings.ToUpper(area[:1]), r.Intn(12)+1),
			report.ColDepotCode:      fmt.Sprintf("D%03d", r.Intn(40)+1),
			report.ColWorkType:       workTypes[r.Intn(len(workTypes))],
			report.ColStatus:         statuses[r.Intn(len(statuses))],
			report.ColGender:         genders[r.Intn(len(genders))],
			report.ColDegree:         degrees[r.Intn(len(degrees))],
			report.ColTrainingPassed: yesNo[r.Intn(len(yesNo))],
			report.ColCardIssued:     yesNo[r.Intn(len(yesNo))],
			report.ColUpdatedAt:      base.Add(time.Duration(r.Intn(24*270)) * time.Hour).Format(time.RFC3339),
		})
	}

	dups := int(float64(o.Rows) * o.DupRatio)
	for i := 0; i < dups && i < o.Rows; i++ {
		src := rows[r.Intn(o.Rows)]
		dup := src.Project(nil)
		if id, _ := dup.Text(report.ColNationalID); id != "" && id != "null" {
			dup[report.ColNationalID] = id + " "
		}
		rows = append(rows, dup)
	}
	return rows
}

// pick returns the last value of list with probability tail, otherwise one
// of the others.
func pick(r *rand.Rand, list []string, tail float64) string {
	if r.Float64() < tail {
		return list[len(list)-1]
	}
	return list[r.Intn(len(list)-1)]
}
