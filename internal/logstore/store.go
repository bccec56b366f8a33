package logstore

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sensormesh/fabric/pkg/histogram"
	"github.com/sensormesh/fabric/pkg/reading"
)

// RecordError persists one device error event. An error identical to the
// device's most recently recorded one (same cause and message) coalesces
// into it by extending ended_at rather than inserting a new row, matching
// how a device stuck reporting the same trouble looks to an operator: one
// ongoing event, not one row per sample interval.
func (s *Store) RecordError(e reading.Error, occurredAt time.Time) error {
	var lastID int64
	var lastCause int
	var lastMessage string
	row := s.DB.QueryRow(
		`SELECT id, cause, message FROM reading_error WHERE device = ? ORDER BY id DESC LIMIT 1`,
		int(e.Device),
	)
	switch err := row.Scan(&lastID, &lastCause, &lastMessage); {
	case err == nil && reading.Cause(lastCause) == e.Cause && lastMessage == e.Message:
		_, err := s.DB.Exec(`UPDATE reading_error SET ended_at = ? WHERE id = ?`, occurredAt.UnixMilli(), lastID)
		return err
	case err != nil && err != sql.ErrNoRows:
		return err
	}

	_, err := s.DB.NamedExec(
		`INSERT INTO reading_error (device, cause, started_at, ended_at, message)
		 VALUES (:device, :cause, :started_at, :ended_at, :message)`,
		map[string]interface{}{
			"device":     int(e.Device),
			"cause":      int(e.Cause),
			"started_at": occurredAt.UnixMilli(),
			"ended_at":   occurredAt.UnixMilli(),
			"message":    e.Message,
		},
	)
	return err
}

// RecordActivation persists one affector activation attempt.
func (s *Store) RecordActivation(aff reading.Affector, accepted bool, requestedAt time.Time) error {
	_, err := s.DB.NamedExec(
		`INSERT INTO affector_activation (affector, requested_at, accepted) VALUES (:affector, :requested_at, :accepted)`,
		map[string]interface{}{
			"affector":     int(aff.Kind),
			"requested_at": requestedAt.UnixMilli(),
			"accepted":     accepted,
		},
	)
	return err
}

// ErrorRow is one row read back from RecentErrors: a span of identical
// trouble reports from Start to End, inclusive.
type ErrorRow struct {
	Device  reading.DeviceID
	Cause   reading.Cause
	Start   time.Time
	End     time.Time
	Message string
}

// RecentErrors returns the most recent error spans recorded for device (or
// every device, if device is not Valid), newest first, bounded to limit
// rows.
func (s *Store) RecentErrors(device reading.DeviceID, limit int) ([]ErrorRow, error) {
	query := sq.Select("device", "cause", "started_at", "ended_at", "message").
		From("reading_error").
		OrderBy("started_at DESC").
		Limit(uint64(limit))
	if device.Valid() {
		query = query.Where(sq.Eq{"device": int(device)})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorRow
	for rows.Next() {
		var row ErrorRow
		var d, c int
		var startMillis, endMillis int64
		if err := rows.Scan(&d, &c, &startMillis, &endMillis, &row.Message); err != nil {
			return nil, err
		}
		row.Device = reading.DeviceID(d)
		row.Cause = reading.Cause(c)
		row.Start = time.UnixMilli(startMillis)
		row.End = time.UnixMilli(endMillis)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ActivationCount reports how many activation attempts were accepted versus
// rejected for a given affector kind.
func (s *Store) ActivationCount(affector reading.AffectorKind) (accepted, rejected int, err error) {
	row := s.DB.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN accepted THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT accepted THEN 1 ELSE 0 END), 0)
		FROM affector_activation WHERE affector = ?`,
		int(affector),
	)
	err = row.Scan(&accepted, &rejected)
	return
}

// DeleteErrorsBefore removes every reading_error row whose span ended
// before cutoff, returning how many rows were removed.
func (s *Store) DeleteErrorsBefore(cutoff time.Time) (int64, error) {
	res, err := s.DB.Exec(`DELETE FROM reading_error WHERE ended_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// replaceHistogramSnapshot overwrites every histogram_snapshot row for k
// with buckets, inside one transaction so a reader never sees a half
// written snapshot.
func (s *Store) replaceHistogramSnapshot(k reading.Kind, buckets []histogram.Bucket) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM histogram_snapshot WHERE kind = ?`, int(k)); err != nil {
		return err
	}
	for _, b := range buckets {
		if _, err := tx.Exec(
			`INSERT INTO histogram_snapshot (kind, midpoint_millis, count) VALUES (?, ?, ?)`,
			int(k), b.MidpointMillis, b.Count,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// loadHistogramSnapshots returns every persisted snapshot, grouped by kind.
func (s *Store) loadHistogramSnapshots() (map[reading.Kind][]histogram.Bucket, error) {
	rows, err := s.DB.Query(`SELECT kind, midpoint_millis, count FROM histogram_snapshot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[reading.Kind][]histogram.Bucket)
	for rows.Next() {
		var kindRaw int
		var b histogram.Bucket
		if err := rows.Scan(&kindRaw, &b.MidpointMillis, &b.Count); err != nil {
			return nil, err
		}
		k := reading.Kind(kindRaw)
		out[k] = append(out[k], b)
	}
	return out, rows.Err()
}
