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
	"strings"
	"time"

	"go.uber.org/zap"
)

// Interaction is one appended row of the interaction log. The log is
// append-only evidence: health interventions and history reconstruction
// both read from it.
type Interaction struct {
	ID              int64
	SessionID       string
	AgentID         string
	Role            string
	Content         string
	ToolCallsJSON   string
	ToolResultsJSON string
	Timestamp       time.Time
}

// LogInteraction appends one interaction row and returns its id.
func (s *Store) LogInteraction(ctx context.Context, in *Interaction) (int64, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (session_id, agent_id, role, content, tool_calls_json, tool_results_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.SessionID, in.AgentID, in.Role, in.Content,
		nullable(in.ToolCallsJSON), nullable(in.ToolResultsJSON), in.Timestamp.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to log interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read interaction id: %w", err)
	}
	return id, nil
}

// ListInteractions returns the log for a session in append order.
func (s *Store) ListInteractions(ctx context.Context, sessionID string) ([]*Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, agent_id, role, content, tool_calls_json, tool_results_json, timestamp
		 FROM interactions WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// DeleteContaminatedInteractions removes rows whose content matches any of
// the given substring patterns. Rows with role=tool are exempt: their
// content is a serialized tool result, not interpretable text, mirroring
// the in-agent cleanup rule. Returns the number of rows deleted.
func (s *Store) DeleteContaminatedInteractions(ctx context.Context, sessionID string, patterns []string) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM interactions WHERE session_id = ? AND role != 'tool'`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to scan interactions: %w", err)
	}

	var doomed []int64
	for rows.Next() {
		var id int64
		var content sql.NullString
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		for _, p := range patterns {
			if content.Valid && strings.Contains(content.String, p) {
				doomed = append(doomed, id)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(doomed) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(doomed))
	args := make([]any, len(doomed))
	for i, id := range doomed {
		placeholders[i] = "?"
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM interactions WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete contaminated interactions: %w", err)
	}
	n, _ := res.RowsAffected()

	s.logger.Info("contaminated interactions deleted",
		zap.String("session_id", sessionID),
		zap.Int64("count", n))
	return int(n), nil
}

func scanInteraction(rows *sql.Rows) (*Interaction, error) {
	var in Interaction
	var content, toolCalls, toolResults sql.NullString
	var ts int64
	if err := rows.Scan(&in.ID, &in.SessionID, &in.AgentID, &in.Role, &content, &toolCalls, &toolResults, &ts); err != nil {
		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}
	in.Content = content.String
	in.ToolCallsJSON = toolCalls.String
	in.ToolResultsJSON = toolResults.String
	in.Timestamp = time.UnixMilli(ts)
	return &in, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
