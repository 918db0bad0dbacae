package store

import (
	"context"
	"fmt"
)

// GraphCounts is a snapshot of graph size, fed into the size gauges.
type GraphCounts struct {
	Concepts  int64
	Versions  int64
	Phrases   int64
	Edges     int64
	Sentences int64
}

// GraphCounts counts the live rows per graph entity in a single pass.
func (s *SQLiteStore) GraphCounts(ctx context.Context) (*GraphCounts, error) {
	const query = `
	SELECT
		(SELECT COUNT(*) FROM concepts),
		(SELECT COUNT(*) FROM concept_versions),
		(SELECT COUNT(*) FROM phrases),
		(SELECT COUNT(*) FROM concept_edges),
		(SELECT COUNT(*) FROM sentences)`

	var counts GraphCounts
	err := s.db.QueryRowContext(ctx, query).Scan(
		&counts.Concepts,
		&counts.Versions,
		&counts.Phrases,
		&counts.Edges,
		&counts.Sentences,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph entities: %w", err)
	}
	return &counts, nil
}
