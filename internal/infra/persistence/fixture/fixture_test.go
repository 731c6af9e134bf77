package fixture

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSampleIsValid(t *testing.T) {
	if err := Sample().Validate(); err != nil {
		t.Fatalf("sample dataset invalid: %v", err)
	}
	if err := SingleSeries(25).Validate(); err != nil {
		t.Fatalf("single series dataset invalid: %v", err)
	}
}

func TestValidateRejectsDanglingReferences(t *testing.T) {
	ds := Sample()
	ds.Series = append(ds.Series, Series{ID: 9, ProcedureID: "sensor-a", FeatureID: "station-1", PhenomenonID: "air_temperature", OfferingID: "missing"})
	if err := ds.Validate(); err == nil {
		t.Fatalf("expected unknown offering error")
	}
	ds = Sample()
	ds.Offerings[1].Names = map[string]string{"de": ""}
	if err := ds.Validate(); err == nil {
		t.Fatalf("expected empty localized name error")
	}
	ds = Sample()
	ds.Observations = append(ds.Observations, Observation{ID: 99, SeriesID: 42})
	if err := ds.Validate(); err == nil {
		t.Fatalf("expected unknown series error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	doc := `offerings:
  - id: O1
    name: Rain
    names:
      de: Regen
procedures:
  - id: gauge
features:
  - id: site
    x: 1.5
    y: 2.5
    srid: 4326
phenomena: [rainfall]
series:
  - id: 1
    procedure: gauge
    feature: site
    phenomenon: rainfall
    offering: O1
observations:
  - id: 1
    identifier: r-1
    series: 1
    start: 1000
    value: 0.2
    unit: mm
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(ds.Observations) != 1 || *ds.Observations[0].Value != 0.2 || *ds.Features[0].X != 1.5 || ds.Offerings[0].Names["de"] != "Regen" {
		t.Fatalf("unexpected dataset %+v", ds)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
