package datastore

import (
	"fmt"
	"strconv"
	"time"

	"obscore/internal/errs"
	"obscore/pkg/domain"
)

// Column names shared by every backend.
const (
	ColOfferingID        = "offering_id"
	ColName              = "name"
	ColProcedureID       = "procedure_id"
	ColPhenomenonID      = "phenomenon_id"
	ColFeatureID         = "feature_id"
	ColFeatureType       = "feature_type"
	ColParentID          = "parent_id"
	ColDescriptionFormat = "description_format"
	ColPhenomenonBegin   = "phen_begin"
	ColPhenomenonEnd     = "phen_end"
	ColResultBegin       = "result_begin"
	ColResultEnd         = "result_end"
	ColMinX              = "min_x"
	ColMinY              = "min_y"
	ColMaxX              = "max_x"
	ColMaxY              = "max_y"
	ColSRID              = "srid"
	ColLocale            = "locale"

	ColID                  = "id"
	ColIdentifier          = "identifier"
	ColSeriesID            = "series_id"
	ColPhenomenonTimeStart = "phenomenon_time_start"
	ColPhenomenonTimeEnd   = "phenomenon_time_end"
	ColResultTime          = "result_time"
	ColValue               = "numeric_value"
	ColUnit                = "unit"
)

// Row is one raw result row keyed by column name. Values carry whatever the
// driver produced: int64, float64, string, []byte, time.Time or nil.
type Row map[string]any

// String returns a required text column.
func (r Row) String(col string) (string, error) {
	s, ok, err := r.OptString(col)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &errs.ConversionError{Field: col, Value: nil, Err: fmt.Errorf("required value is null")}
	}
	return s, nil
}

// OptString returns a nullable text column; ok is false for NULL or missing.
func (r Row) OptString(col string) (string, bool, error) {
	switch v := r[col].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case []byte:
		return string(v), true, nil
	default:
		return "", false, &errs.ConversionError{Field: col, Value: v, Err: fmt.Errorf("unexpected type %T", v)}
	}
}

// Int64 returns a required integer column.
func (r Row) Int64(col string) (int64, error) {
	n, ok, err := r.OptInt64(col)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &errs.ConversionError{Field: col, Value: nil, Err: fmt.Errorf("required value is null")}
	}
	return n, nil
}

// OptInt64 returns a nullable integer column.
func (r Row) OptInt64(col string) (int64, bool, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, false, nil
	case int64:
		return v, true, nil
	case int:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, false, &errs.ConversionError{Field: col, Value: v, Err: fmt.Errorf("not an integer")}
		}
		return int64(v), true, nil
	case string:
		return parseInt(col, v)
	case []byte:
		return parseInt(col, string(v))
	default:
		return 0, false, &errs.ConversionError{Field: col, Value: v, Err: fmt.Errorf("unexpected type %T", v)}
	}
}

// OptFloat returns a nullable floating point column.
func (r Row) OptFloat(col string) (float64, bool, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case string:
		return parseFloat(col, v)
	case []byte:
		return parseFloat(col, string(v))
	default:
		return 0, false, &errs.ConversionError{Field: col, Value: v, Err: fmt.Errorf("unexpected type %T", v)}
	}
}

// OptTime returns a nullable timestamp stored as unix milliseconds.
func (r Row) OptTime(col string) (time.Time, bool, error) {
	if t, ok := r[col].(time.Time); ok {
		return t.UTC(), true, nil
	}
	ms, ok, err := r.OptInt64(col)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Time returns a required timestamp column.
func (r Row) Time(col string) (time.Time, error) {
	t, ok, err := r.OptTime(col)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, &errs.ConversionError{Field: col, Value: nil, Err: fmt.Errorf("required value is null")}
	}
	return t, nil
}

func parseInt(col, raw string) (int64, bool, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, &errs.ConversionError{Field: col, Value: raw, Err: err}
	}
	return n, true, nil
}

func parseFloat(col, raw string) (float64, bool, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, &errs.ConversionError{Field: col, Value: raw, Err: err}
	}
	return f, true, nil
}

// Observation maps a series chunk row onto a domain observation.
func (r Row) Observation() (domain.Observation, error) {
	var obs domain.Observation
	var err error
	if obs.ID, err = r.Int64(ColID); err != nil {
		return obs, err
	}
	if obs.Identifier, _, err = r.OptString(ColIdentifier); err != nil {
		return obs, err
	}
	series, err := r.Int64(ColSeriesID)
	if err != nil {
		return obs, err
	}
	obs.SeriesID = domain.SeriesID(series)
	if obs.PhenomenonTimeStart, err = r.Time(ColPhenomenonTimeStart); err != nil {
		return obs, err
	}
	end, ok, err := r.OptTime(ColPhenomenonTimeEnd)
	if err != nil {
		return obs, err
	}
	obs.PhenomenonTimeEnd = obs.PhenomenonTimeStart
	if ok {
		obs.PhenomenonTimeEnd = end
	}
	if obs.ResultTime, _, err = r.OptTime(ColResultTime); err != nil {
		return obs, err
	}
	value, ok, err := r.OptFloat(ColValue)
	if err != nil {
		return obs, err
	}
	if !ok {
		return obs, &errs.ConversionError{Field: ColValue, Value: nil, Err: fmt.Errorf("required value is null")}
	}
	obs.Value = value
	if obs.Unit, _, err = r.OptString(ColUnit); err != nil {
		return obs, err
	}
	return obs, nil
}

// Series maps a series resolution row onto its domain tuple.
func (r Row) Series() (domain.Series, error) {
	var s domain.Series
	id, err := r.Int64(ColSeriesID)
	if err != nil {
		return s, err
	}
	s.ID = domain.SeriesID(id)
	if s.ProcedureID, err = r.String(ColProcedureID); err != nil {
		return s, err
	}
	if s.FeatureID, err = r.String(ColFeatureID); err != nil {
		return s, err
	}
	if s.PhenomenonID, err = r.String(ColPhenomenonID); err != nil {
		return s, err
	}
	if s.OfferingID, err = r.String(ColOfferingID); err != nil {
		return s, err
	}
	return s, nil
}
