// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// KnowledgeItem is a distilled, reusable fact harvested from agent
// thoughts. Searched by keyword substring and importance threshold.
type KnowledgeItem struct {
	ID                  int64
	SessionID           string
	Keywords            string
	Summary             string
	SourceInteractionID int64
	Importance          float64
	CreatedAt           time.Time
	LastAccessed        time.Time
}

// SaveKnowledge inserts a knowledge item and returns its id.
func (s *Store) SaveKnowledge(ctx context.Context, item *KnowledgeItem) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (session_id, keywords, summary, source_interaction_id, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullable(item.SessionID), item.Keywords, item.Summary,
		nullableInt(item.SourceInteractionID), item.Importance, item.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to save knowledge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge id: %w", err)
	}
	return id, nil
}

// SearchKnowledge returns items whose keywords contain the given term and
// whose importance meets the threshold, most important first. The
// last_accessed column is touched for every hit.
func (s *Store) SearchKnowledge(ctx context.Context, term string, minImportance float64) ([]*KnowledgeItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, keywords, summary, source_interaction_id, importance, created_at, last_accessed
		 FROM knowledge
		 WHERE keywords LIKE '%' || ? || '%' AND importance >= ?
		 ORDER BY importance DESC, id ASC`, term, minImportance)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}
	defer rows.Close()

	var out []*KnowledgeItem
	var ids []any
	for rows.Next() {
		var item KnowledgeItem
		var sessionID sql.NullString
		var sourceID, lastAccessed sql.NullInt64
		var created int64
		if err := rows.Scan(&item.ID, &sessionID, &item.Keywords, &item.Summary,
			&sourceID, &item.Importance, &created, &lastAccessed); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		item.SessionID = sessionID.String
		item.SourceInteractionID = sourceID.Int64
		item.CreatedAt = time.UnixMilli(created)
		if lastAccessed.Valid {
			item.LastAccessed = time.UnixMilli(lastAccessed.Int64)
		}
		out = append(out, &item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `UPDATE knowledge SET last_accessed = ? WHERE id = ?`, now, id); err != nil {
			return nil, fmt.Errorf("failed to touch knowledge item: %w", err)
		}
	}
	return out, nil
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
