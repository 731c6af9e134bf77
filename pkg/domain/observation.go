// Package domain defines the observation model shared by the cache feeder,
// the streaming layer and the datastore adapters of obscore.
package domain

import (
	"fmt"
	"time"
)

// SeriesID identifies one observation time-series in the store.
type SeriesID int64

// String renders the id as used in logs and error contexts.
func (id SeriesID) String() string {
	return fmt.Sprintf("series-%d", int64(id))
}

// Series is the (procedure, feature, phenomenon, offering) tuple behind a SeriesID.
type Series struct {
	ID           SeriesID `json:"id"`
	ProcedureID  string   `json:"procedure_id"`
	FeatureID    string   `json:"feature_id"`
	PhenomenonID string   `json:"phenomenon_id"`
	OfferingID   string   `json:"offering_id"`
}

// Observation is a single measured value of a series.
type Observation struct {
	ID                  int64     `json:"id"`
	Identifier          string    `json:"identifier,omitempty"`
	SeriesID            SeriesID  `json:"series_id"`
	PhenomenonTimeStart time.Time `json:"phenomenon_time_start"`
	PhenomenonTimeEnd   time.Time `json:"phenomenon_time_end"`
	ResultTime          time.Time `json:"result_time"`
	Value               float64   `json:"value"`
	Unit                string    `json:"unit,omitempty"`
}

// TimePeriod is a closed time interval.
type TimePeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Envelope is an axis-aligned bounding box in the given spatial reference.
type Envelope struct {
	SRID int     `json:"srid"`
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}
