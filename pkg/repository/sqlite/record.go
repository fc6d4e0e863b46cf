package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

type recordRepository struct {
	db *sql.DB
}

func newRecordRepository(db *sql.DB) *recordRepository {
	return &recordRepository{db: db}
}

// Timestamps are stored as UTC unix nanoseconds so that range queries
// need no string parsing.
func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// encodeEmbedding packs a float32 vector into a little-endian blob
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

func (r *recordRepository) Append(ctx context.Context, rec *model.ActivityRecord) (*model.ActivityRecord, error) {
	stored := rec.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	var deltaJSON, afterJSON []byte
	var err error
	if stored.StateDelta != nil {
		if deltaJSON, err = json.Marshal(stored.StateDelta); err != nil {
			return nil, goerr.Wrap(err, "failed to marshal state delta")
		}
	}
	if stored.StateAfter != nil {
		if afterJSON, err = json.Marshal(stored.StateAfter); err != nil {
			return nil, goerr.Wrap(err, "failed to marshal state after")
		}
	}

	var startNano, endNano sql.NullInt64
	if !stored.StartTime.IsZero() {
		startNano = sql.NullInt64{Int64: toUnixNano(stored.StartTime), Valid: true}
	}
	if !stored.EndTime.IsZero() {
		endNano = sql.NullInt64{Int64: toUnixNano(stored.EndTime), Valid: true}
	}

	var parentID sql.NullInt64
	if stored.ParentID != nil {
		parentID = sql.NullInt64{Int64: int64(*stored.ParentID), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_logs (
			run_id, timestamp, activity, result, start_time, end_time,
			duration_sec, state_delta, state_after, embedding, source, parent_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(stored.RunID),
		toUnixNano(stored.Timestamp),
		stored.Activity,
		stored.Result,
		startNano,
		endNano,
		stored.DurationSec,
		nullableString(deltaJSON),
		nullableString(afterJSON),
		encodeEmbedding(stored.Embedding),
		stored.Source.String(),
		parentID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to append activity record", goerr.V("activity", stored.Activity))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get inserted record ID")
	}
	stored.ID = types.RecordID(id)

	return stored, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *recordRepository) AppendSnapshot(ctx context.Context, snap *model.StateSnapshot) error {
	stored := *snap
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO state_snapshots (timestamp, energy, happiness, xp)
		VALUES (?, ?, ?, ?)`,
		toUnixNano(stored.Timestamp),
		stored.Energy,
		stored.Happiness,
		stored.XP,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to append state snapshot")
	}

	return nil
}

func (r *recordRepository) LastTime(ctx context.Context, activity string) (*time.Time, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT timestamp FROM activity_logs
		WHERE activity = ?
		ORDER BY id DESC
		LIMIT 1`,
		activity,
	)

	var nano int64
	if err := row.Scan(&nano); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to query last activity time", goerr.V("activity", activity))
	}

	ts := fromUnixNano(nano)
	return &ts, nil
}

func (r *recordRepository) CountSince(ctx context.Context, activity string, since time.Time) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activity_logs
		WHERE activity = ? AND timestamp >= ?`,
		activity,
		toUnixNano(since),
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, goerr.Wrap(err, "failed to count activity records", goerr.V("activity", activity))
	}

	return count, nil
}

const recordColumns = `id, run_id, timestamp, activity, result, start_time, end_time,
	duration_sec, state_delta, state_after, embedding, source, parent_id`

func (r *recordRepository) scanRecord(rows *sql.Rows) (*model.ActivityRecord, error) {
	var rec model.ActivityRecord
	var runID sql.NullString
	var tsNano int64
	var startNano, endNano, parentID sql.NullInt64
	var result, deltaJSON, afterJSON sql.NullString
	var embedding []byte
	var source string

	if err := rows.Scan(
		&rec.ID, &runID, &tsNano, &rec.Activity, &result, &startNano, &endNano,
		&rec.DurationSec, &deltaJSON, &afterJSON, &embedding, &source, &parentID,
	); err != nil {
		return nil, goerr.Wrap(err, "failed to scan activity record")
	}

	rec.RunID = model.RunID(runID.String)
	rec.Timestamp = fromUnixNano(tsNano)
	rec.Result = result.String
	rec.Source = types.RecordSource(source)
	if startNano.Valid {
		rec.StartTime = fromUnixNano(startNano.Int64)
	}
	if endNano.Valid {
		rec.EndTime = fromUnixNano(endNano.Int64)
	}
	if deltaJSON.Valid {
		if err := json.Unmarshal([]byte(deltaJSON.String), &rec.StateDelta); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal state delta", goerr.V("id", rec.ID))
		}
	}
	if afterJSON.Valid {
		rec.StateAfter = &model.State{}
		if err := json.Unmarshal([]byte(afterJSON.String), rec.StateAfter); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal state after", goerr.V("id", rec.ID))
		}
	}
	rec.Embedding = decodeEmbedding(embedding)
	if parentID.Valid {
		pid := types.RecordID(parentID.Int64)
		rec.ParentID = &pid
	}

	return &rec, nil
}

func (r *recordRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*model.ActivityRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query activity records")
	}
	defer func() { _ = rows.Close() }()

	var records []*model.ActivityRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate activity records")
	}

	return records, nil
}

func (r *recordRepository) ListRecent(ctx context.Context, limit int) ([]*model.ActivityRecord, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM activity_logs
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
}

func (r *recordRepository) ListRecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM activity_logs
		WHERE activity = ?
		ORDER BY id DESC
		LIMIT ?`,
		activity,
		limit,
	)
}

func (r *recordRepository) FindSimilar(ctx context.Context, embedding []float32, topN int, opts interfaces.FindSimilarOptions) ([]*model.ScoredRecord, error) {
	// Exact nearest-neighbor: fetch every row with an embedding that
	// matches the filters and score in process.
	query := `SELECT ` + recordColumns + ` FROM activity_logs WHERE embedding IS NOT NULL`
	args := []any{}
	if opts.Activity != "" {
		query += ` AND activity = ?`
		args = append(args, opts.Activity)
	}
	if opts.Source != "" {
		query += ` AND source = ?`
		args = append(args, opts.Source.String())
	}

	records, err := r.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	scored := make([]*model.ScoredRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		scored = append(scored, &model.ScoredRecord{
			Record: rec,
			Score:  model.CosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topN < len(scored) {
		scored = scored[:topN]
	}

	return scored, nil
}

func (r *recordRepository) Summary(ctx context.Context, since time.Time) ([]*model.ActivitySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity, COUNT(*), COALESCE(SUM(duration_sec), 0)
		FROM activity_logs
		WHERE timestamp >= ?
		GROUP BY activity
		ORDER BY activity`,
		toUnixNano(since),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query activity summary")
	}
	defer func() { _ = rows.Close() }()

	var result []*model.ActivitySummary
	for rows.Next() {
		var s model.ActivitySummary
		if err := rows.Scan(&s.Activity, &s.Count, &s.TotalDurationSec); err != nil {
			return nil, goerr.Wrap(err, "failed to scan activity summary")
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate activity summary")
	}

	return result, nil
}

func (r *recordRepository) ListSnapshots(ctx context.Context, limit int) ([]*model.StateSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, energy, happiness, xp
		FROM state_snapshots
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query state snapshots")
	}
	defer func() { _ = rows.Close() }()

	var result []*model.StateSnapshot
	for rows.Next() {
		var snap model.StateSnapshot
		var nano int64
		if err := rows.Scan(&nano, &snap.Energy, &snap.Happiness, &snap.XP); err != nil {
			return nil, goerr.Wrap(err, "failed to scan state snapshot")
		}
		snap.Timestamp = fromUnixNano(nano)
		result = append(result, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate state snapshots")
	}

	return result, nil
}
