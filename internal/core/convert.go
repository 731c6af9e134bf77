package core

import (
	"sort"

	"obscore/internal/cache"
	"obscore/internal/datastore"
	"obscore/pkg/domain"
)

// offeringRows groups the raw rows belonging to one offering.
type offeringRows struct {
	id        string
	name      string
	relations []datastore.Row
	names     []datastore.Row
	extent    datastore.Row
}

// groupOfferingRows joins the offering list with its relation, extent and
// name rows. Rows whose offering id cannot be read are reported through bad.
func groupOfferingRows(res offeringResult, bad func(error)) []*offeringRows {
	byID := make(map[string]*offeringRows, len(res.list))
	out := make([]*offeringRows, 0, len(res.list))
	for _, r := range res.list {
		id, err := r.String(datastore.ColOfferingID)
		if err != nil {
			bad(err)
			continue
		}
		name, _, err := r.OptString(datastore.ColName)
		if err != nil {
			bad(err)
			continue
		}
		g := &offeringRows{id: id, name: name}
		byID[id] = g
		out = append(out, g)
	}
	for _, r := range res.relations {
		id, err := r.String(datastore.ColOfferingID)
		if err != nil {
			bad(err)
			continue
		}
		if g, ok := byID[id]; ok {
			g.relations = append(g.relations, r)
		}
	}
	for _, r := range res.extents {
		id, err := r.String(datastore.ColOfferingID)
		if err != nil {
			bad(err)
			continue
		}
		if g, ok := byID[id]; ok {
			g.extent = r
		}
	}
	for _, r := range res.names {
		id, err := r.String(datastore.ColOfferingID)
		if err != nil {
			bad(err)
			continue
		}
		if g, ok := byID[id]; ok {
			g.names = append(g.names, r)
		}
	}
	return out
}

// offeringEntry converts one offering's rows into its cache entry.
func offeringEntry(g *offeringRows) (cache.OfferingEntry, error) {
	entry := cache.OfferingEntry{ID: g.id, Name: g.name}
	var procedures, phenomena, features []string
	for _, r := range g.relations {
		p, err := r.String(datastore.ColProcedureID)
		if err != nil {
			return cache.OfferingEntry{}, err
		}
		ph, err := r.String(datastore.ColPhenomenonID)
		if err != nil {
			return cache.OfferingEntry{}, err
		}
		f, err := r.String(datastore.ColFeatureID)
		if err != nil {
			return cache.OfferingEntry{}, err
		}
		procedures = append(procedures, p)
		phenomena = append(phenomena, ph)
		features = append(features, f)
	}
	for _, r := range g.names {
		locale, err := r.String(datastore.ColLocale)
		if err != nil {
			return cache.OfferingEntry{}, err
		}
		name, err := r.String(datastore.ColName)
		if err != nil {
			return cache.OfferingEntry{}, err
		}
		if entry.Names == nil {
			entry.Names = make(map[string]string, len(g.names))
		}
		entry.Names[locale] = name
	}
	entry.Procedures = sortedUnique(procedures)
	entry.Phenomena = sortedUnique(phenomena)
	entry.Features = sortedUnique(features)
	if g.extent != nil {
		var err error
		if entry.PhenomenonTime, err = period(g.extent, datastore.ColPhenomenonBegin, datastore.ColPhenomenonEnd); err != nil {
			return cache.OfferingEntry{}, err
		}
		if entry.ResultTime, err = period(g.extent, datastore.ColResultBegin, datastore.ColResultEnd); err != nil {
			return cache.OfferingEntry{}, err
		}
		if entry.Envelope, err = envelope(g.extent); err != nil {
			return cache.OfferingEntry{}, err
		}
	}
	return entry, nil
}

// period reads a [begin, end] pair; nil when either side is NULL.
func period(r datastore.Row, beginCol, endCol string) (*domain.TimePeriod, error) {
	begin, okBegin, err := r.OptTime(beginCol)
	if err != nil {
		return nil, err
	}
	end, okEnd, err := r.OptTime(endCol)
	if err != nil {
		return nil, err
	}
	if !okBegin || !okEnd {
		return nil, nil
	}
	return &domain.TimePeriod{Start: begin, End: end}, nil
}

// envelope reads the bounding box columns; nil when no located feature contributed.
func envelope(r datastore.Row) (*domain.Envelope, error) {
	cols := [4]string{datastore.ColMinX, datastore.ColMinY, datastore.ColMaxX, datastore.ColMaxY}
	var vals [4]float64
	for i, col := range cols {
		v, ok, err := r.OptFloat(col)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		vals[i] = v
	}
	srid, _, err := r.OptInt64(datastore.ColSRID)
	if err != nil {
		return nil, err
	}
	return &domain.Envelope{SRID: int(srid), MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}, nil
}

func procedureEntries(rows []datastore.Row) ([]cache.ProcedureEntry, error) {
	byID := make(map[string]*cache.ProcedureEntry)
	for _, r := range rows {
		id, err := r.String(datastore.ColProcedureID)
		if err != nil {
			return nil, err
		}
		format, _, err := r.OptString(datastore.ColDescriptionFormat)
		if err != nil {
			return nil, err
		}
		parent, hasParent, err := r.OptString(datastore.ColParentID)
		if err != nil {
			return nil, err
		}
		e, ok := byID[id]
		if !ok {
			e = &cache.ProcedureEntry{ID: id}
			byID[id] = e
		}
		if format != "" {
			e.Format = format
		}
		if hasParent {
			e.Parents = append(e.Parents, parent)
		}
	}
	out := make([]cache.ProcedureEntry, 0, len(byID))
	for _, e := range byID {
		e.Parents = sortedUnique(e.Parents)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func featureEntries(rows []datastore.Row) ([]cache.FeatureEntry, error) {
	byID := make(map[string]*cache.FeatureEntry)
	for _, r := range rows {
		id, err := r.String(datastore.ColFeatureID)
		if err != nil {
			return nil, err
		}
		name, _, err := r.OptString(datastore.ColName)
		if err != nil {
			return nil, err
		}
		typ, _, err := r.OptString(datastore.ColFeatureType)
		if err != nil {
			return nil, err
		}
		parent, hasParent, err := r.OptString(datastore.ColParentID)
		if err != nil {
			return nil, err
		}
		e, ok := byID[id]
		if !ok {
			e = &cache.FeatureEntry{ID: id}
			byID[id] = e
		}
		if name != "" {
			e.Name = name
		}
		if typ != "" {
			e.Type = typ
		}
		if hasParent {
			e.Parents = append(e.Parents, parent)
		}
	}
	out := make([]cache.FeatureEntry, 0, len(byID))
	for _, e := range byID {
		e.Parents = sortedUnique(e.Parents)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func phenomenonEntries(rows []datastore.Row) ([]cache.PhenomenonEntry, error) {
	byID := make(map[string]*cache.PhenomenonEntry)
	for _, r := range rows {
		id, err := r.String(datastore.ColPhenomenonID)
		if err != nil {
			return nil, err
		}
		procedure, hasProcedure, err := r.OptString(datastore.ColProcedureID)
		if err != nil {
			return nil, err
		}
		offering, hasOffering, err := r.OptString(datastore.ColOfferingID)
		if err != nil {
			return nil, err
		}
		e, ok := byID[id]
		if !ok {
			e = &cache.PhenomenonEntry{ID: id}
			byID[id] = e
		}
		if hasProcedure {
			e.Procedures = append(e.Procedures, procedure)
		}
		if hasOffering {
			e.Offerings = append(e.Offerings, offering)
		}
	}
	out := make([]cache.PhenomenonEntry, 0, len(byID))
	for _, e := range byID {
		e.Procedures = sortedUnique(e.Procedures)
		e.Offerings = sortedUnique(e.Offerings)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func globalEntry(rows []datastore.Row) (cache.GlobalEntry, error) {
	var g cache.GlobalEntry
	if len(rows) == 0 {
		return g, nil
	}
	r := rows[0]
	var err error
	if g.PhenomenonTime, err = period(r, datastore.ColPhenomenonBegin, datastore.ColPhenomenonEnd); err != nil {
		return cache.GlobalEntry{}, err
	}
	if g.ResultTime, err = period(r, datastore.ColResultBegin, datastore.ColResultEnd); err != nil {
		return cache.GlobalEntry{}, err
	}
	if g.Envelope, err = envelope(r); err != nil {
		return cache.GlobalEntry{}, err
	}
	return g, nil
}

// sortedUnique returns the distinct values of in, sorted; nil for empty input.
func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
