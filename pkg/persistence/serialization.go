package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalEventRecord serializes an EventRecord to JSON bytes.
func MarshalEventRecord(event *EventRecord) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot marshal nil EventRecord")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal EventRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalEventRecord deserializes an EventRecord from JSON bytes.
func UnmarshalEventRecord(data []byte) (*EventRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var event EventRecord
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to EventRecord: %w", err)
	}

	return &event, nil
}
