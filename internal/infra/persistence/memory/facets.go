package memory

import (
	"sort"

	"obscore/internal/datastore"
	"obscore/internal/infra/persistence/fixture"
)

func inScope(scope datastore.Scope, offering string) bool {
	if scope.All() {
		return true
	}
	for _, id := range scope.Offerings {
		if id == offering {
			return true
		}
	}
	return false
}

func (s *Store) offeringRows(scope datastore.Scope) []datastore.Row {
	var rows []datastore.Row
	for _, o := range s.ds.Offerings {
		if !inScope(scope, o.ID) {
			continue
		}
		rows = append(rows, datastore.Row{datastore.ColOfferingID: o.ID, datastore.ColName: nullString(o.Name)})
	}
	sortRows(rows, datastore.ColOfferingID)
	return rows
}

func (s *Store) offeringNameRows(scope datastore.Scope) []datastore.Row {
	var rows []datastore.Row
	for _, o := range s.ds.Offerings {
		if !inScope(scope, o.ID) {
			continue
		}
		locales := make([]string, 0, len(o.Names))
		for locale := range o.Names {
			locales = append(locales, locale)
		}
		sort.Strings(locales)
		for _, locale := range locales {
			rows = append(rows, datastore.Row{
				datastore.ColOfferingID: o.ID,
				datastore.ColLocale:     locale,
				datastore.ColName:       o.Names[locale],
			})
		}
	}
	sortRows(rows, datastore.ColOfferingID)
	return rows
}

func (s *Store) relationRows(scope datastore.Scope) []datastore.Row {
	type tuple struct{ offering, procedure, phenomenon, feature string }
	seen := make(map[tuple]bool)
	var tuples []tuple
	for _, sr := range s.ds.Series {
		if !inScope(scope, sr.OfferingID) {
			continue
		}
		t := tuple{sr.OfferingID, sr.ProcedureID, sr.PhenomenonID, sr.FeatureID}
		if seen[t] {
			continue
		}
		seen[t] = true
		tuples = append(tuples, t)
	}
	sort.Slice(tuples, func(i, j int) bool {
		a, b := tuples[i], tuples[j]
		if a.offering != b.offering {
			return a.offering < b.offering
		}
		if a.procedure != b.procedure {
			return a.procedure < b.procedure
		}
		if a.phenomenon != b.phenomenon {
			return a.phenomenon < b.phenomenon
		}
		return a.feature < b.feature
	})
	rows := make([]datastore.Row, len(tuples))
	for i, t := range tuples {
		rows[i] = datastore.Row{
			datastore.ColOfferingID:   t.offering,
			datastore.ColProcedureID:  t.procedure,
			datastore.ColPhenomenonID: t.phenomenon,
			datastore.ColFeatureID:    t.feature,
		}
	}
	return rows
}

// extent accumulates the aggregates the SQL extent queries compute. Nil
// fields stay NULL.
type extent struct {
	phenBegin, phenEnd, resultBegin, resultEnd *int64
	minX, minY, maxX, maxY                     *float64
	srid                                       *int64
}

func (e *extent) add(o fixture.Observation, f fixture.Feature) {
	end := o.PhenomenonTimeStart
	if o.PhenomenonTimeEnd != nil {
		end = *o.PhenomenonTimeEnd
	}
	e.phenBegin = minInt(e.phenBegin, &o.PhenomenonTimeStart)
	e.phenEnd = maxInt(e.phenEnd, &end)
	e.resultBegin = minInt(e.resultBegin, o.ResultTime)
	e.resultEnd = maxInt(e.resultEnd, o.ResultTime)
	e.minX = minFloat(e.minX, f.X)
	e.minY = minFloat(e.minY, f.Y)
	e.maxX = maxFloat(e.maxX, f.X)
	e.maxY = maxFloat(e.maxY, f.Y)
	if f.SRID != 0 {
		srid := int64(f.SRID)
		e.srid = maxInt(e.srid, &srid)
	}
}

func (e *extent) row() datastore.Row {
	return datastore.Row{
		datastore.ColPhenomenonBegin: nullInt(e.phenBegin),
		datastore.ColPhenomenonEnd:   nullInt(e.phenEnd),
		datastore.ColResultBegin:     nullInt(e.resultBegin),
		datastore.ColResultEnd:       nullInt(e.resultEnd),
		datastore.ColMinX:            nullFloat(e.minX),
		datastore.ColMinY:            nullFloat(e.minY),
		datastore.ColMaxX:            nullFloat(e.maxX),
		datastore.ColMaxY:            nullFloat(e.maxY),
		datastore.ColSRID:            nullInt(e.srid),
	}
}

// joined visits every (series, observation, feature) triple of the inner join.
func (s *Store) joined(visit func(sr fixture.Series, o fixture.Observation, f fixture.Feature)) {
	series := make(map[int64]fixture.Series, len(s.ds.Series))
	for _, sr := range s.ds.Series {
		series[sr.ID] = sr
	}
	features := make(map[string]fixture.Feature, len(s.ds.Features))
	for _, f := range s.ds.Features {
		features[f.ID] = f
	}
	for _, o := range s.ds.Observations {
		sr, ok := series[o.SeriesID]
		if !ok {
			continue
		}
		f, ok := features[sr.FeatureID]
		if !ok {
			continue
		}
		visit(sr, o, f)
	}
}

func (s *Store) offeringExtentRows(scope datastore.Scope) []datastore.Row {
	byOffering := make(map[string]*extent)
	s.joined(func(sr fixture.Series, o fixture.Observation, f fixture.Feature) {
		if !inScope(scope, sr.OfferingID) {
			return
		}
		e, ok := byOffering[sr.OfferingID]
		if !ok {
			e = &extent{}
			byOffering[sr.OfferingID] = e
		}
		e.add(o, f)
	})
	rows := make([]datastore.Row, 0, len(byOffering))
	for id, e := range byOffering {
		r := e.row()
		r[datastore.ColOfferingID] = id
		rows = append(rows, r)
	}
	sortRows(rows, datastore.ColOfferingID)
	return rows
}

func (s *Store) globalExtentRows() []datastore.Row {
	e := &extent{}
	s.joined(func(_ fixture.Series, o fixture.Observation, f fixture.Feature) { e.add(o, f) })
	return []datastore.Row{e.row()}
}

func (s *Store) procedureRows() []datastore.Row {
	rows := make([]datastore.Row, 0, len(s.ds.Procedures))
	for _, p := range s.ds.Procedures {
		rows = append(rows, datastore.Row{
			datastore.ColProcedureID:       p.ID,
			datastore.ColDescriptionFormat: nullString(p.DescriptionFormat),
			datastore.ColParentID:          nullString(p.ParentID),
		})
	}
	sortRows(rows, datastore.ColProcedureID)
	return rows
}

func (s *Store) featureRows() []datastore.Row {
	rows := make([]datastore.Row, 0, len(s.ds.Features))
	for _, f := range s.ds.Features {
		rows = append(rows, datastore.Row{
			datastore.ColFeatureID:   f.ID,
			datastore.ColName:        nullString(f.Name),
			datastore.ColFeatureType: nullString(f.Type),
			datastore.ColParentID:    nullString(f.ParentID),
		})
	}
	sortRows(rows, datastore.ColFeatureID)
	return rows
}

func (s *Store) phenomenonRows() []datastore.Row {
	ids := append([]string(nil), s.ds.Phenomena...)
	sort.Strings(ids)
	var rows []datastore.Row
	for _, id := range ids {
		var matched []fixture.Series
		for _, sr := range s.ds.Series {
			if sr.PhenomenonID == id {
				matched = append(matched, sr)
			}
		}
		if len(matched) == 0 {
			rows = append(rows, datastore.Row{datastore.ColPhenomenonID: id, datastore.ColProcedureID: nil, datastore.ColOfferingID: nil})
			continue
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].ProcedureID != matched[j].ProcedureID {
				return matched[i].ProcedureID < matched[j].ProcedureID
			}
			return matched[i].OfferingID < matched[j].OfferingID
		})
		for _, sr := range matched {
			rows = append(rows, datastore.Row{
				datastore.ColPhenomenonID: id,
				datastore.ColProcedureID:  sr.ProcedureID,
				datastore.ColOfferingID:   sr.OfferingID,
			})
		}
	}
	return rows
}

func sortRows(rows []datastore.Row, col string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i][col].(string)
		b, _ := rows[j][col].(string)
		return a < b
	})
}

func minInt(cur, v *int64) *int64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v < *cur {
		n := *v
		return &n
	}
	return cur
}

func maxInt(cur, v *int64) *int64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		n := *v
		return &n
	}
	return cur
}

func minFloat(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v < *cur {
		f := *v
		return &f
	}
	return cur
}

func maxFloat(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		f := *v
		return &f
	}
	return cur
}
