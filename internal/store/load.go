package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Load returns the whole committed state. Instances come in creation
// order and connections in declaration order.
//
// Returns empty slices (not nil) for an empty store.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	instances, err := s.loadInstances(ctx)
	if err != nil {
		return nil, err
	}
	snap.Instances = instances

	conns, err := s.loadConnections(ctx)
	if err != nil {
		return nil, err
	}
	snap.Connections = conns

	records, err := s.queryRecords(ctx, `
		SELECT instance, key, value FROM records
		ORDER BY instance COLLATE BINARY ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, err
	}
	snap.Records = records

	var last sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MAX(seq), COUNT(*) FROM commits`).Scan(&last, &snap.Commits)
	if err != nil {
		return nil, &PersistenceError{Op: "load commits", Err: err}
	}
	snap.LastSeq = last.Int64

	return snap, nil
}

// Records returns the persistence entries of one instance ordered by key.
func (s *Store) Records(ctx context.Context, instance string) ([]Record, error) {
	return s.queryRecords(ctx, `
		SELECT instance, key, value FROM records
		WHERE instance = ?
		ORDER BY key COLLATE BINARY ASC
	`, instance)
}

// HasCommit reports whether an invocation's batch was committed.
func (s *Store) HasCommit(ctx context.Context, invocationID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commits WHERE invocation_id = ?`, invocationID).Scan(&n)
	if err != nil {
		return false, &PersistenceError{Op: "has commit", Err: err}
	}
	return n > 0, nil
}

func (s *Store) loadInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, parent, function, seq, ran, observed,
		       port_in, port_out, port_sub_in, port_sub_out
		FROM instances
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, &PersistenceError{Op: "load instances", Err: err}
	}
	defer rows.Close()

	out := []InstanceRow{}
	for rows.Next() {
		row, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load instances", Err: err}
	}
	return out, nil
}

func scanInstance(rows *sql.Rows) (InstanceRow, error) {
	var (
		row      InstanceRow
		observed string
		ports    [numPorts]sql.NullString
	)
	err := rows.Scan(&row.Name, &row.Parent, &row.Function, &row.Seq, &row.Ran, &observed,
		&ports[PortIn], &ports[PortOut], &ports[PortSubIn], &ports[PortSubOut])
	if err != nil {
		return row, &PersistenceError{Op: "scan instance", Err: err}
	}

	if err := json.Unmarshal([]byte(observed), &row.Observed); err != nil {
		return row, &PersistenceError{Op: "decode observed versions", Instance: row.Name, Err: err}
	}
	for i, p := range ports {
		if !p.Valid {
			continue
		}
		raw, err := rawJSON(p.String)
		if err != nil {
			return row, &PersistenceError{Op: "decode port", Instance: row.Name, Err: err}
		}
		row.Ports[i] = raw
	}
	return row, nil
}

func (s *Store) loadConnections(ctx context.Context) ([]ConnectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dst, seq, owner, src, literal
		FROM connections
		ORDER BY seq ASC, dst COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, &PersistenceError{Op: "load connections", Err: err}
	}
	defer rows.Close()

	out := []ConnectionRow{}
	for rows.Next() {
		var (
			row     ConnectionRow
			src     sql.NullString
			literal sql.NullString
		)
		if err := rows.Scan(&row.Dst, &row.Seq, &row.Owner, &src, &literal); err != nil {
			return nil, &PersistenceError{Op: "scan connection", Err: err}
		}
		row.Src = src.String
		if literal.Valid {
			raw, err := rawJSON(literal.String)
			if err != nil {
				return nil, &PersistenceError{Op: "decode literal", Instance: row.Owner, Err: err}
			}
			row.Literal = raw
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load connections", Err: err}
	}
	return out, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "load records", Err: err}
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec   Record
			value string
		)
		if err := rows.Scan(&rec.Instance, &rec.Key, &value); err != nil {
			return nil, &PersistenceError{Op: "scan record", Err: err}
		}
		raw, err := rawJSON(value)
		if err != nil {
			return nil, &PersistenceError{Op: "decode record " + rec.Key, Instance: rec.Instance, Err: err}
		}
		rec.Value = raw
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load records", Err: err}
	}
	return out, nil
}

func rawJSON(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("invalid JSON %.40q", s)
	}
	return json.RawMessage(s), nil
}
