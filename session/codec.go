package session

import (
	"encoding/json"
	"fmt"
)

// encodeData serializes session Data for storage. JSON is used across all
// backends so a session written by one store can be read after a backend
// migration.
func encodeData(d Data) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}
	return b, nil
}

// decodeData deserializes session Data from storage.
func decodeData(b []byte, d *Data) error {
	if len(b) == 0 {
		*d = Data{}
		return nil
	}
	if err := json.Unmarshal(b, d); err != nil {
		return fmt.Errorf("decode session data: %w", err)
	}
	return nil
}

func encodeRedisRecord(rec redisRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	return b, nil
}

func decodeRedisRecord(b []byte, rec *redisRecord) error {
	if err := json.Unmarshal(b, rec); err != nil {
		return fmt.Errorf("decode session record: %w", err)
	}
	return nil
}
