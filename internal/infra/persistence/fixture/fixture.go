// Package fixture describes observation store content in a backend-neutral
// form. The memory datastore serves a Dataset directly; the SQL backends load
// one through sqlstore.Seed. Datasets can be read from YAML for local runs.
package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Offering row. Names holds localized names keyed by locale.
type Offering struct {
	ID    string            `yaml:"id"`
	Name  string            `yaml:"name,omitempty"`
	Names map[string]string `yaml:"names,omitempty"`
}

// Procedure row.
type Procedure struct {
	ID                string `yaml:"id"`
	DescriptionFormat string `yaml:"descriptionFormat,omitempty"`
	ParentID          string `yaml:"parentId,omitempty"`
}

// Feature row. Location is optional; a nil X or Y leaves the feature out of
// envelope aggregation.
type Feature struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	ParentID string   `yaml:"parentId,omitempty"`
	X        *float64 `yaml:"x,omitempty"`
	Y        *float64 `yaml:"y,omitempty"`
	SRID     int      `yaml:"srid,omitempty"`
}

// Series ties one procedure, feature, phenomenon and offering together.
type Series struct {
	ID           int64  `yaml:"id"`
	ProcedureID  string `yaml:"procedure"`
	FeatureID    string `yaml:"feature"`
	PhenomenonID string `yaml:"phenomenon"`
	OfferingID   string `yaml:"offering"`
}

// Observation row. Times are unix milliseconds; nil end means an instant.
type Observation struct {
	ID                  int64    `yaml:"id"`
	Identifier          string   `yaml:"identifier,omitempty"`
	SeriesID            int64    `yaml:"series"`
	PhenomenonTimeStart int64    `yaml:"start"`
	PhenomenonTimeEnd   *int64   `yaml:"end,omitempty"`
	ResultTime          *int64   `yaml:"resultTime,omitempty"`
	Value               *float64 `yaml:"value,omitempty"`
	Unit                string   `yaml:"unit,omitempty"`
}

// Dataset is the full content of an observation store.
type Dataset struct {
	Offerings    []Offering    `yaml:"offerings"`
	Procedures   []Procedure   `yaml:"procedures"`
	Features     []Feature     `yaml:"features"`
	Phenomena    []string      `yaml:"phenomena"`
	Series       []Series      `yaml:"series"`
	Observations []Observation `yaml:"observations"`
}

// LoadFile reads a YAML dataset.
func LoadFile(path string) (Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(b, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// Validate checks referential integrity.
func (ds Dataset) Validate() error {
	offerings := make(map[string]bool, len(ds.Offerings))
	for _, o := range ds.Offerings {
		offerings[o.ID] = true
		for locale, name := range o.Names {
			if locale == "" || name == "" {
				return fmt.Errorf("offering %s: empty localized name for locale %q", o.ID, locale)
			}
		}
	}
	procedures := make(map[string]bool, len(ds.Procedures))
	for _, p := range ds.Procedures {
		procedures[p.ID] = true
	}
	features := make(map[string]bool, len(ds.Features))
	for _, f := range ds.Features {
		features[f.ID] = true
	}
	phenomena := make(map[string]bool, len(ds.Phenomena))
	for _, p := range ds.Phenomena {
		phenomena[p] = true
	}
	series := make(map[int64]bool, len(ds.Series))
	for _, s := range ds.Series {
		switch {
		case !offerings[s.OfferingID]:
			return fmt.Errorf("series %d: unknown offering %q", s.ID, s.OfferingID)
		case !procedures[s.ProcedureID]:
			return fmt.Errorf("series %d: unknown procedure %q", s.ID, s.ProcedureID)
		case !features[s.FeatureID]:
			return fmt.Errorf("series %d: unknown feature %q", s.ID, s.FeatureID)
		case !phenomena[s.PhenomenonID]:
			return fmt.Errorf("series %d: unknown phenomenon %q", s.ID, s.PhenomenonID)
		}
		series[s.ID] = true
	}
	for _, o := range ds.Observations {
		if !series[o.SeriesID] {
			return fmt.Errorf("observation %d: unknown series %d", o.ID, o.SeriesID)
		}
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

// Sample returns a small two-offering dataset used across backend tests.
//
// O1 observes temperature at two stations and carries German and French
// names; O2 observes humidity at one station. Series 3 carries a duplicated
// identifier.
func Sample() Dataset {
	return Dataset{
		Offerings: []Offering{
			{ID: "O1", Name: "Temperature network", Names: map[string]string{"de": "Temperaturmessnetz", "fr": "Réseau de température"}},
			{ID: "O2", Name: "Humidity network"},
		},
		Procedures: []Procedure{
			{ID: "sensor-a", DescriptionFormat: "http://www.opengis.net/sensorml/2.0"},
			{ID: "sensor-b", DescriptionFormat: "http://www.opengis.net/sensorml/2.0", ParentID: "sensor-a"},
		},
		Features: []Feature{
			{ID: "station-1", Name: "Station 1", Type: "SamplingPoint", X: Float(7.0), Y: Float(51.0), SRID: 4326},
			{ID: "station-2", Name: "Station 2", Type: "SamplingPoint", X: Float(8.5), Y: Float(52.5), SRID: 4326, ParentID: "station-1"},
		},
		Phenomena: []string{"air_temperature", "humidity", "wind_speed"},
		Series: []Series{
			{ID: 1, ProcedureID: "sensor-a", FeatureID: "station-1", PhenomenonID: "air_temperature", OfferingID: "O1"},
			{ID: 2, ProcedureID: "sensor-b", FeatureID: "station-2", PhenomenonID: "air_temperature", OfferingID: "O1"},
			{ID: 3, ProcedureID: "sensor-b", FeatureID: "station-2", PhenomenonID: "humidity", OfferingID: "O2"},
		},
		Observations: []Observation{
			{ID: 1, Identifier: "t-1", SeriesID: 1, PhenomenonTimeStart: 1000, ResultTime: Int(1000), Value: Float(12.5), Unit: "degC"},
			{ID: 2, Identifier: "t-2", SeriesID: 1, PhenomenonTimeStart: 2000, PhenomenonTimeEnd: Int(2500), ResultTime: Int(2600), Value: Float(13.0), Unit: "degC"},
			{ID: 3, Identifier: "t-3", SeriesID: 2, PhenomenonTimeStart: 1500, ResultTime: Int(1500), Value: Float(11.0), Unit: "degC"},
			{ID: 4, Identifier: "h-1", SeriesID: 3, PhenomenonTimeStart: 3000, ResultTime: Int(3000), Value: Float(80), Unit: "%"},
			{ID: 5, Identifier: "h-1", SeriesID: 3, PhenomenonTimeStart: 3000, ResultTime: Int(3100), Value: Float(80), Unit: "%"},
			{ID: 6, Identifier: "h-2", SeriesID: 3, PhenomenonTimeStart: 4000, ResultTime: Int(4000), Value: Float(82), Unit: "%"},
		},
	}
}

// SingleSeries builds a dataset holding one series with n sequential observations,
// for streaming tests.
func SingleSeries(n int) Dataset {
	ds := Dataset{
		Offerings:  []Offering{{ID: "O1"}},
		Procedures: []Procedure{{ID: "p"}},
		Features:   []Feature{{ID: "f"}},
		Phenomena:  []string{"ph"},
		Series:     []Series{{ID: 1, ProcedureID: "p", FeatureID: "f", PhenomenonID: "ph", OfferingID: "O1"}},
	}
	ds.Observations = make([]Observation, n)
	for i := range n {
		id := int64(i + 1)
		ds.Observations[i] = Observation{
			ID:                  id,
			Identifier:          fmt.Sprintf("obs-%d", id),
			SeriesID:            1,
			PhenomenonTimeStart: id * 1000,
			Value:               Float(float64(id)),
		}
	}
	return ds
}
