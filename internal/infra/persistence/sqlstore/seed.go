package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"obscore/internal/infra/persistence/fixture"
)

// Seed inserts ds into db inside one transaction. Parents must precede their
// children in ds.
func Seed(ctx context.Context, db *sql.DB, d Dialect, ds fixture.Dataset) (retErr error) {
	if err := ds.Validate(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	exec := func(table, q string, args ...any) error {
		if _, err := tx.ExecContext(ctx, d.Rebind(q), args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	}
	for _, o := range ds.Offerings {
		if err := exec("offerings", `INSERT INTO offerings(id, name) VALUES(?, ?)`, o.ID, nullString(o.Name)); err != nil {
			return err
		}
	}
	for _, o := range ds.Offerings {
		for _, locale := range slices.Sorted(maps.Keys(o.Names)) {
			if err := exec("offering_i18n", `INSERT INTO offering_i18n(offering_id, locale, name) VALUES(?, ?, ?)`, o.ID, locale, o.Names[locale]); err != nil {
				return err
			}
		}
	}
	for _, p := range ds.Procedures {
		if err := exec("procedures", `INSERT INTO procedures(id, description_format, parent_id) VALUES(?, ?, ?)`,
			p.ID, nullString(p.DescriptionFormat), nullString(p.ParentID)); err != nil {
			return err
		}
	}
	for _, f := range ds.Features {
		var srid any
		if f.SRID != 0 {
			srid = int64(f.SRID)
		}
		if err := exec("features", `INSERT INTO features(id, name, feature_type, parent_id, x, y, srid) VALUES(?, ?, ?, ?, ?, ?, ?)`,
			f.ID, nullString(f.Name), nullString(f.Type), nullString(f.ParentID), nullFloat(f.X), nullFloat(f.Y), srid); err != nil {
			return err
		}
	}
	for _, p := range ds.Phenomena {
		if err := exec("phenomena", `INSERT INTO phenomena(id) VALUES(?)`, p); err != nil {
			return err
		}
	}
	for _, s := range ds.Series {
		if err := exec("series", `INSERT INTO series(id, procedure_id, feature_id, phenomenon_id, offering_id) VALUES(?, ?, ?, ?, ?)`,
			s.ID, s.ProcedureID, s.FeatureID, s.PhenomenonID, s.OfferingID); err != nil {
			return err
		}
	}
	for _, o := range ds.Observations {
		if err := exec("observations", `INSERT INTO observations(id, identifier, series_id, phenomenon_time_start, phenomenon_time_end, result_time, numeric_value, unit) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, nullString(o.Identifier), o.SeriesID, o.PhenomenonTimeStart, nullInt(o.PhenomenonTimeEnd), nullInt(o.ResultTime), nullFloat(o.Value), nullString(o.Unit)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
