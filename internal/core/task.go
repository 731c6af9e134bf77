package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"obscore/internal/cache"
	"obscore/internal/datastore"
)

// TaskKind distinguishes the two rebuild shapes.
type TaskKind int

const (
	// FullRebuild recomputes one facet for every key.
	FullRebuild TaskKind = iota + 1
	// OfferingScopedRebuild recomputes the entry of one offering.
	OfferingScopedRebuild
)

func (k TaskKind) String() string {
	switch k {
	case FullRebuild:
		return "full_rebuild"
	case OfferingScopedRebuild:
		return "offering_scoped_rebuild"
	default:
		return fmt.Sprintf("task_kind(%d)", int(k))
	}
}

// UpdateTask is one unit of rebuild work. Tasks are stateless; each run
// writes only the facet (FullRebuild) or offering key (OfferingScopedRebuild)
// it names.
type UpdateTask struct {
	Kind       TaskKind
	Facet      cache.Facet
	OfferingID string
	// Width bounds the task's internal conversion fan-out.
	Width int
}

// Context labels the task in error records: the facet name for a full
// rebuild, the offering id for a scoped rebuild.
func (t UpdateTask) Context() string {
	if t.Kind == OfferingScopedRebuild {
		return t.OfferingID
	}
	return string(t.Facet)
}

// execute runs the task on conn. Failures are recorded in sink; nothing is
// returned to the caller.
func (t UpdateTask) execute(ctx context.Context, store datastore.Datastore, conn datastore.Conn, c *cache.Cache, sink *ErrorSink) {
	var err error
	switch t.Kind {
	case FullRebuild:
		err = t.rebuildFacet(ctx, store, conn, c, sink)
	case OfferingScopedRebuild:
		err = t.rebuildOffering(ctx, store, conn, c)
	default:
		err = &InvalidArgumentError{Argument: "task", Reason: "unknown kind " + t.Kind.String()}
	}
	sink.Add(t.Context(), err)
}

func (t UpdateTask) rebuildFacet(ctx context.Context, store datastore.Datastore, conn datastore.Conn, c *cache.Cache, sink *ErrorSink) error {
	all := datastore.Scope{}
	switch t.Facet {
	case cache.FacetOfferings:
		return t.rebuildAllOfferings(ctx, store, conn, c, sink)
	case cache.FacetProcedures:
		rows, err := store.QueryFacet(ctx, conn, datastore.FacetProcedures, all)
		if err != nil {
			return err
		}
		entries, err := procedureEntries(rows)
		if err != nil {
			return err
		}
		c.ReplaceProcedures(entries)
	case cache.FacetFeatures:
		rows, err := store.QueryFacet(ctx, conn, datastore.FacetFeatures, all)
		if err != nil {
			return err
		}
		entries, err := featureEntries(rows)
		if err != nil {
			return err
		}
		c.ReplaceFeatures(entries)
	case cache.FacetPhenomena:
		rows, err := store.QueryFacet(ctx, conn, datastore.FacetPhenomena, all)
		if err != nil {
			return err
		}
		entries, err := phenomenonEntries(rows)
		if err != nil {
			return err
		}
		c.ReplacePhenomena(entries)
	case cache.FacetGlobal:
		rows, err := store.QueryFacet(ctx, conn, datastore.FacetGlobalExtents, all)
		if err != nil {
			return err
		}
		entry, err := globalEntry(rows)
		if err != nil {
			return err
		}
		c.SetGlobal(entry)
	default:
		return &InvalidArgumentError{Argument: "facet", Reason: fmt.Sprintf("unknown facet %q", t.Facet)}
	}
	return nil
}

// offeringResult holds the raw rows of the offering sub-steps.
type offeringResult struct {
	list, relations, extents, names []datastore.Row
}

// loadOfferingRows runs the offering list query and then the relation, extent
// and localized name queries on the same connection.
func loadOfferingRows(ctx context.Context, store datastore.Datastore, conn datastore.Conn, scope datastore.Scope) (offeringResult, error) {
	var res offeringResult
	var err error
	if res.list, err = store.QueryFacet(ctx, conn, datastore.FacetOfferings, scope); err != nil {
		return offeringResult{}, err
	}
	if len(res.list) == 0 {
		return offeringResult{}, nil
	}
	if res.relations, err = store.QueryFacet(ctx, conn, datastore.FacetOfferingRelations, scope); err != nil {
		return offeringResult{}, err
	}
	if res.extents, err = store.QueryFacet(ctx, conn, datastore.FacetOfferingExtents, scope); err != nil {
		return offeringResult{}, err
	}
	if res.names, err = store.QueryFacet(ctx, conn, datastore.FacetOfferingNames, scope); err != nil {
		return offeringResult{}, err
	}
	return res, nil
}

func (t UpdateTask) rebuildAllOfferings(ctx context.Context, store datastore.Datastore, conn datastore.Conn, c *cache.Cache, sink *ErrorSink) error {
	res, err := loadOfferingRows(ctx, store, conn, datastore.Scope{})
	if err != nil {
		return err
	}
	groups := groupOfferingRows(res, func(err error) { sink.Add(string(cache.FacetOfferings), err) })

	width := t.Width
	if width <= 0 {
		width = 1
	}
	entries := make([]cache.OfferingEntry, len(groups))
	converted := make([]bool, len(groups))
	var g errgroup.Group
	g.SetLimit(width)
	for i, grp := range groups {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					sink.Add(grp.id, fmt.Errorf("convert offering panicked: %v", r))
				}
			}()
			entry, err := offeringEntry(grp)
			if err != nil {
				sink.Add(grp.id, err)
				return nil
			}
			entries[i], converted[i] = entry, true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]cache.OfferingEntry, 0, len(entries))
	for i, ok := range converted {
		if ok {
			out = append(out, entries[i])
		}
	}
	c.ReplaceOfferings(out)
	return nil
}

func (t UpdateTask) rebuildOffering(ctx context.Context, store datastore.Datastore, conn datastore.Conn, c *cache.Cache) error {
	scope := datastore.Scope{Offerings: []string{t.OfferingID}}
	res, err := loadOfferingRows(ctx, store, conn, scope)
	if err != nil {
		return err
	}
	var convErr error
	groups := groupOfferingRows(res, func(err error) {
		if convErr == nil {
			convErr = err
		}
	})
	if convErr != nil {
		return convErr
	}
	for _, grp := range groups {
		if grp.id != t.OfferingID {
			continue
		}
		entry, err := offeringEntry(grp)
		if err != nil {
			return err
		}
		c.PutOffering(entry)
		return nil
	}
	c.RemoveOffering(t.OfferingID)
	return nil
}
