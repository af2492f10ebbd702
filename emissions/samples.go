package emissions

import "sort"

// Sample is a named demo dataset.
type Sample struct {
	ID          string
	Name        string
	Description string
	Records     []Record
}

// Sample identifiers.
const (
	SampleDefault    = "default"
	SampleScopeTrend = "scope-trend"
)

// Samples lists the built-in demo datasets, sorted by id.
func Samples() []Sample {
	out := []Sample{defaultSample(), scopeTrendSample()}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupSample returns the sample with the given id.
func LookupSample(id string) (Sample, bool) {
	for _, s := range Samples() {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

func defaultSample() Sample {
	return Sample{
		ID:          SampleDefault,
		Name:        "Five-year inventory",
		Description: "2019-2023 with the full scope and subcategory breakdown",
		Records: []Record{
			breakdown(2023, [3]float64{20, 43, 21.8}, [2]float64{30, 40}, [4]float64{120, 10, 5, 8}),
			breakdown(2022, [3]float64{22, 48, 25}, [2]float64{35, 45}, [4]float64{130, 12, 8, 10}),
			breakdown(2021, [3]float64{25, 52, 28}, [2]float64{40, 50}, [4]float64{140, 15, 10, 10}),
			breakdown(2020, [3]float64{28, 57, 30}, [2]float64{45, 55}, [4]float64{150, 18, 12, 10}),
			breakdown(2019, [3]float64{30, 62, 33}, [2]float64{50, 60}, [4]float64{155, 20, 15, 10}),
		},
	}
}

func scopeTrendSample() Sample {
	rows := [][4]float64{
		{2015, 250, 300, 450},
		{2016, 240, 280, 430},
		{2017, 230, 270, 410},
		{2018, 200, 250, 400},
		{2019, 180, 230, 390},
		{2020, 160, 210, 380},
		{2021, 150, 190, 360},
		{2022, 140, 180, 340},
		{2023, 130, 170, 320},
		{2024, 120, 160, 310},
		{2025, 110, 150, 300},
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{
			Year:   int(row[0]),
			Scope1: Float(row[1]),
			Scope2: Float(row[2]),
			Scope3: Float(row[3]),
		})
	}
	return Sample{
		ID:          SampleScopeTrend,
		Name:        "Scope trend 2015-2025",
		Description: "Eleven years of scope totals without subcategories",
		Records:     records,
	}
}

// breakdown builds a record from its subcategories; scope totals come from
// Rollup.
func breakdown(year int, s1 [3]float64, s2 [2]float64, s3 [4]float64) Record {
	r := Record{
		Year:              year,
		NaturalGasHeating: Float(s1[0]),
		DieselGenerator:   Float(s1[1]),
		DieselFleet:       Float(s1[2]),
		NYGridElectricity: Float(s2[0]),
		MFGridElectricity: Float(s2[1]),
		BusinessTravel:    Float(s3[0]),
		EmployeeCommuting: Float(s3[1]),
		Logistics:         Float(s3[2]),
		Waste:             Float(s3[3]),
	}
	return Rollup(r)
}
