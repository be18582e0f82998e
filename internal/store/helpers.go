package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/DASSPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeStateData marshals a state data map for storage; empty maps store NULL.
func encodeStateData(data map[models.DataKey]string) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeStateData parses stored state data. A corrupt column yields an empty map
// rather than failing the load.
func decodeStateData(participantID, raw string) map[models.DataKey]string {
	data := make(map[models.DataKey]string)
	if raw == "" {
		return data
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Error("Store decodeStateData JSON unmarshal failed", "error", err, "participantID", participantID)
		return make(map[models.DataKey]string)
	}
	return data
}

// scanParticipantIDs reads a single participant_id column from rows.
func scanParticipantIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant ids: %w", err)
	}
	return ids, nil
}
