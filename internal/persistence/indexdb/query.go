package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

type SaveRow struct {
	SaveID     string
	Path       string
	Seed       int64
	ChunkSize  int
	Chunks     int
	Retained   int
	Digest     string
	RecordedAt string
}

// LatestSave returns the most recently recorded save, or ok=false.
func (s *SQLiteIndex) LatestSave(ctx context.Context) (row SaveRow, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT save_id,path,seed,chunk_size,chunks,retained,digest,recorded_at
		 FROM saves ORDER BY recorded_at DESC LIMIT 1`,
	).Scan(&row.SaveID, &row.Path, &row.Seed, &row.ChunkSize, &row.Chunks, &row.Retained, &row.Digest, &row.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SaveRow{}, false, nil
	}
	if err != nil {
		return SaveRow{}, false, err
	}
	return row, true, nil
}

// GenerationCounts returns how many chunks were published per source.
func (s *SQLiteIndex) GenerationCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM generations GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		out[src] = n
	}
	return out, rows.Err()
}
