package sqlstore

import (
	"fmt"
	"strings"

	"obscore/internal/datastore"
)

const extentColumns = `MIN(o.phenomenon_time_start) AS phen_begin,
	MAX(COALESCE(o.phenomenon_time_end, o.phenomenon_time_start)) AS phen_end,
	MIN(o.result_time) AS result_begin,
	MAX(o.result_time) AS result_end,
	MIN(f.x) AS min_x,
	MIN(f.y) AS min_y,
	MAX(f.x) AS max_x,
	MAX(f.y) AS max_y,
	MAX(f.srid) AS srid`

const extentJoins = `FROM series s
	JOIN observations o ON o.series_id = s.id
	JOIN features f ON f.id = s.feature_id`

const seriesChunkColumns = `SELECT id, identifier, series_id, phenomenon_time_start, phenomenon_time_end,
	result_time, numeric_value, unit
	FROM observations`

// inClause renders "col IN (?, ...)" for ids; an empty id list renders nothing.
func inClause(col string, ids []string) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")", args
}

func where(clause string) string {
	if clause == "" {
		return ""
	}
	return " WHERE " + clause
}

// facetQuery builds the statement for kind restricted to scope.
func facetQuery(kind datastore.FacetKind, scope datastore.Scope) (string, []any, error) {
	switch kind {
	case datastore.FacetOfferings:
		clause, args := inClause("id", scope.Offerings)
		return "SELECT id AS offering_id, name FROM offerings" + where(clause) + " ORDER BY id", args, nil
	case datastore.FacetOfferingRelations:
		clause, args := inClause("offering_id", scope.Offerings)
		return `SELECT DISTINCT offering_id AS offering_id, procedure_id AS procedure_id,
	phenomenon_id AS phenomenon_id, feature_id AS feature_id
	FROM series` + where(clause) + `
	ORDER BY offering_id, procedure_id, phenomenon_id, feature_id`, args, nil
	case datastore.FacetOfferingExtents:
		clause, args := inClause("s.offering_id", scope.Offerings)
		return "SELECT s.offering_id AS offering_id,\n\t" + extentColumns + "\n\t" + extentJoins +
			where(clause) + "\n\tGROUP BY s.offering_id ORDER BY s.offering_id", args, nil
	case datastore.FacetProcedures:
		return "SELECT id AS procedure_id, description_format AS description_format, parent_id AS parent_id FROM procedures ORDER BY id", nil, nil
	case datastore.FacetFeatures:
		return "SELECT id AS feature_id, name AS name, feature_type AS feature_type, parent_id AS parent_id FROM features ORDER BY id", nil, nil
	case datastore.FacetPhenomena:
		return `SELECT p.id AS phenomenon_id, s.procedure_id AS procedure_id, s.offering_id AS offering_id
	FROM phenomena p
	LEFT JOIN series s ON s.phenomenon_id = p.id
	ORDER BY p.id, s.procedure_id, s.offering_id`, nil, nil
	case datastore.FacetGlobalExtents:
		return "SELECT " + extentColumns + "\n\t" + extentJoins, nil, nil
	case datastore.FacetOfferingNames:
		clause, args := inClause("offering_id", scope.Offerings)
		return "SELECT offering_id AS offering_id, locale AS locale, name AS name FROM offering_i18n" +
			where(clause) + " ORDER BY offering_id, locale", args, nil
	default:
		return "", nil, fmt.Errorf("unknown facet %q", kind)
	}
}

// seriesChunkQuery builds the keyset-paginated read of one series.
func seriesChunkQuery(series int64, cursor int64, limit int, filter datastore.SeriesFilter) (string, []any) {
	conds := []string{"series_id = ?", "id > ?"}
	args := []any{series, cursor}
	if !filter.Begin.IsZero() {
		conds = append(conds, "phenomenon_time_start >= ?")
		args = append(args, filter.Begin.UnixMilli())
	}
	if !filter.End.IsZero() {
		conds = append(conds, "phenomenon_time_start < ?")
		args = append(args, filter.End.UnixMilli())
	}
	if clause, ids := inClause("identifier", filter.Identifiers); clause != "" {
		conds = append(conds, clause)
		args = append(args, ids...)
	}
	args = append(args, int64(limit))
	return seriesChunkColumns + where(strings.Join(conds, " AND ")) + " ORDER BY id LIMIT ?", args
}

// seriesQuery resolves a SeriesQuery to the matching series tuples.
func seriesQuery(q datastore.SeriesQuery) (string, []any) {
	var conds []string
	var args []any
	for _, f := range []struct {
		col string
		ids []string
	}{
		{"s.procedure_id", q.Procedures},
		{"s.feature_id", q.Features},
		{"s.phenomenon_id", q.Phenomena},
		{"s.offering_id", q.Offerings},
	} {
		if clause, ids := inClause(f.col, f.ids); clause != "" {
			conds = append(conds, clause)
			args = append(args, ids...)
		}
	}
	if clause, ids := inClause("o.identifier", q.Identifiers); clause != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM observations o WHERE o.series_id = s.id AND "+clause+")")
		args = append(args, ids...)
	}
	return `SELECT s.id AS series_id, s.procedure_id AS procedure_id, s.feature_id AS feature_id,
	s.phenomenon_id AS phenomenon_id, s.offering_id AS offering_id
	FROM series s` + where(strings.Join(conds, " AND ")) + " ORDER BY s.id", args
}
