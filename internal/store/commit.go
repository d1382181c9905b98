package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Commit writes a batch in one SQL transaction. It is idempotent on the
// invocation id: a batch whose id was already committed is ignored and
// Commit reports false. Either every row of the batch becomes durable or
// none does.
func (s *Store) Commit(ctx context.Context, b Batch) (bool, error) {
	if b.InvocationID == "" {
		return false, &PersistenceError{Op: "commit", Instance: b.Instance, Err: errors.New("empty invocation id")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &PersistenceError{Op: "commit", Instance: b.Instance, Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO commits (invocation_id, instance, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(invocation_id) DO NOTHING
	`, b.InvocationID, b.Instance, b.Seq)
	if err != nil {
		return false, &PersistenceError{Op: "commit", Instance: b.Instance, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "commit", Instance: b.Instance, Err: err}
	}
	if n == 0 {
		return false, nil
	}

	for _, row := range b.Instances {
		if err := writeInstance(ctx, tx, row); err != nil {
			return false, err
		}
	}
	for _, row := range b.Connections {
		if err := writeConnection(ctx, tx, row); err != nil {
			return false, err
		}
	}
	for _, rec := range b.Records {
		if err := writeRecord(ctx, tx, rec, b.Seq); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &PersistenceError{Op: "commit", Instance: b.Instance, Err: err}
	}
	return true, nil
}

func writeInstance(ctx context.Context, tx *sql.Tx, row InstanceRow) error {
	observed := row.Observed
	if observed == nil {
		observed = map[string]int64{}
	}
	observedJSON, err := json.Marshal(observed)
	if err != nil {
		return &PersistenceError{Op: "write instance", Instance: row.Name, Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instances
		(name, parent, function, seq, ran, observed, port_in, port_out, port_sub_in, port_sub_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ran = excluded.ran,
			observed = excluded.observed,
			port_in = excluded.port_in,
			port_out = excluded.port_out,
			port_sub_in = excluded.port_sub_in,
			port_sub_out = excluded.port_sub_out
	`,
		row.Name,
		row.Parent,
		row.Function,
		row.Seq,
		row.Ran,
		string(observedJSON),
		nullJSON(row.Ports[PortIn]),
		nullJSON(row.Ports[PortOut]),
		nullJSON(row.Ports[PortSubIn]),
		nullJSON(row.Ports[PortSubOut]),
	)
	if err != nil {
		return &PersistenceError{Op: "write instance", Instance: row.Name, Err: err}
	}
	return nil
}

// writeConnection inserts a connection. An existing literal connection to
// the same destination is updated in place; any other clash is an error.
func writeConnection(ctx context.Context, tx *sql.Tx, row ConnectionRow) error {
	if (row.Src == "") == (row.Literal == nil) {
		return &PersistenceError{Op: "write connection", Instance: row.Owner,
			Err: fmt.Errorf("connection to %s needs exactly one of source and literal", row.Dst)}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO connections (dst, seq, owner, src, literal)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dst) DO UPDATE SET
			literal = excluded.literal,
			owner = excluded.owner
		WHERE connections.literal IS NOT NULL AND excluded.literal IS NOT NULL
	`, row.Dst, row.Seq, row.Owner, nullString(row.Src), nullJSON(row.Literal))
	if err != nil {
		return &PersistenceError{Op: "write connection", Instance: row.Owner, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "write connection", Instance: row.Owner, Err: err}
	}
	if n == 0 {
		return &PersistenceError{Op: "write connection", Instance: row.Owner,
			Err: fmt.Errorf("destination %s is already connected", row.Dst)}
	}
	return nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, rec Record, seq int64) error {
	if rec.Value == nil {
		_, err := tx.ExecContext(ctx, `DELETE FROM records WHERE instance = ? AND key = ?`, rec.Instance, rec.Key)
		if err != nil {
			return &PersistenceError{Op: "delete record", Instance: rec.Instance, Err: err}
		}
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (instance, key, value, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance, key) DO UPDATE SET
			value = excluded.value,
			seq = excluded.seq
	`, rec.Instance, rec.Key, string(rec.Value), seq)
	if err != nil {
		return &PersistenceError{Op: "write record", Instance: rec.Instance, Err: err}
	}
	return nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if raw == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
