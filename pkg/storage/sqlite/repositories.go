package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/fxamacker/cbor/v2"
)

type dbRound struct {
	Round      uint64          `db:"round"`
	Attempts   int             `db:"attempts"`
	Fit        string          `db:"fit"`
	Evaluate   sql.NullString  `db:"evaluate"`
	FitMetrics sql.NullString  `db:"fit_metrics"`
	Loss       sql.NullFloat64 `db:"loss"`
	Metrics    sql.NullString  `db:"metrics"`
	Timestamp  time.Time       `db:"timestamp"`
	Duration   int64           `db:"duration"`
}

func toDBRound(r fl.RoundRecord) (dbRound, error) {
	fit, err := json.Marshal(r.Fit)
	if err != nil {
		return dbRound{}, err
	}
	row := dbRound{
		Round:     r.Round,
		Attempts:  r.Attempts,
		Fit:       string(fit),
		Timestamp: r.Timestamp,
		Duration:  int64(r.Duration),
	}
	if row.Evaluate, err = nullJSON(r.Evaluate, r.Evaluate != nil); err != nil {
		return dbRound{}, err
	}
	if row.FitMetrics, err = nullJSON(r.FitMetrics, r.FitMetrics != nil); err != nil {
		return dbRound{}, err
	}
	if row.Metrics, err = nullJSON(r.Metrics, r.Metrics != nil); err != nil {
		return dbRound{}, err
	}
	if r.Loss != nil {
		row.Loss = sql.NullFloat64{Float64: *r.Loss, Valid: true}
	}

	return row, nil
}

func (row dbRound) record() (fl.RoundRecord, error) {
	r := fl.RoundRecord{
		Round:     row.Round,
		Attempts:  row.Attempts,
		Timestamp: row.Timestamp.UTC(),
		Duration:  time.Duration(row.Duration),
	}
	if err := json.Unmarshal([]byte(row.Fit), &r.Fit); err != nil {
		return fl.RoundRecord{}, err
	}
	if row.Evaluate.Valid {
		r.Evaluate = &fl.PhaseOutcome{}
		if err := json.Unmarshal([]byte(row.Evaluate.String), r.Evaluate); err != nil {
			return fl.RoundRecord{}, err
		}
	}
	if row.FitMetrics.Valid {
		if err := json.Unmarshal([]byte(row.FitMetrics.String), &r.FitMetrics); err != nil {
			return fl.RoundRecord{}, err
		}
	}
	if row.Metrics.Valid {
		if err := json.Unmarshal([]byte(row.Metrics.String), &r.Metrics); err != nil {
			return fl.RoundRecord{}, err
		}
	}
	if row.Loss.Valid {
		loss := row.Loss.Float64
		r.Loss = &loss
	}

	return r, nil
}

func nullJSON(v any, valid bool) (sql.NullString, error) {
	if !valid {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

type Rounds struct {
	db *Database
}

func NewRoundRepository(db *Database) *Rounds {
	return &Rounds{db: db}
}

func (r *Rounds) Create(ctx context.Context, rec fl.RoundRecord) error {
	row, err := toDBRound(rec)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO rounds (round, attempts, fit, evaluate, fit_metrics, loss, metrics, timestamp, duration)
		VALUES (:round, :attempts, :fit, :evaluate, :fit_metrics, :loss, :metrics, :timestamp, :duration)`, row)
	if err != nil {
		return createError(err)
	}

	return nil
}

func (r *Rounds) Get(ctx context.Context, round uint64) (fl.RoundRecord, error) {
	var row dbRound
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM rounds WHERE round = ?`, round); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.RoundRecord{}, pkgerrors.ErrNotFound
		}

		return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return row.record()
}

func (r *Rounds) List(ctx context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM rounds`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM rounds ORDER BY round ASC LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	records := make([]fl.RoundRecord, len(rows))
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		records[i] = rec
	}

	return records, total, nil
}

type Parameters struct {
	db *Database
}

func NewParameterRepository(db *Database) *Parameters {
	return &Parameters{db: db}
}

func (r *Parameters) Save(ctx context.Context, p fl.ParameterSet) error {
	data, err := cbor.Marshal(p.Tensors)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO parameters (round, tensors) VALUES (?, ?)`, p.Round, data); err != nil {
		return createError(err)
	}

	return nil
}

func (r *Parameters) Get(ctx context.Context, round uint64) (fl.ParameterSet, error) {
	return r.one(ctx, `SELECT round, tensors FROM parameters WHERE round = ?`, round)
}

func (r *Parameters) Latest(ctx context.Context) (fl.ParameterSet, error) {
	return r.one(ctx, `SELECT round, tensors FROM parameters ORDER BY round DESC LIMIT 1`)
}

func (r *Parameters) Delete(ctx context.Context, round uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM parameters WHERE round = ?`, round)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *Parameters) Versions(ctx context.Context) ([]uint64, error) {
	versions := []uint64{}
	if err := r.db.SelectContext(ctx, &versions, `SELECT round FROM parameters ORDER BY round ASC`); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return versions, nil
}

func (r *Parameters) one(ctx context.Context, query string, args ...any) (fl.ParameterSet, error) {
	var row struct {
		Round   uint64 `db:"round"`
		Tensors []byte `db:"tensors"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.ParameterSet{}, pkgerrors.ErrNotFound
		}

		return fl.ParameterSet{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	p := fl.ParameterSet{Round: row.Round}
	if err := cbor.Unmarshal(row.Tensors, &p.Tensors); err != nil {
		return fl.ParameterSet{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return p, nil
}
