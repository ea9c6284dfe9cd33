// Package ingest turns uploaded record lists into records.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/Layr-Labs/forj-go/pkg/types"
)

var (
	// ErrNoRecords is returned when an upload contains no records at all.
	ErrNoRecords = errors.New("upload contains no records")

	// ErrInvalidEncoding is returned when an upload is not valid UTF-8 text.
	ErrInvalidEncoding = errors.New("upload is not valid UTF-8")
)

// csvColumns is the column order of an uploaded sheet
var csvColumns = []string{types.FieldName, types.FieldEnroll, types.FieldEmail, types.FieldPosition}

// ParseCSV reads rows of name,enroll,email[,position]. An empty position is
// stored as null. Blank lines are skipped, as is a first row naming the
// columns. Columns past the fourth are ignored.
func ParseCSV(r io.Reader) ([]types.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records := make([]types.Record, 0)
	for first := true; ; first = false {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if first && isHeader(row) {
			continue
		}
		line, _ := reader.FieldPos(0)
		if len(row) < 3 {
			return nil, fmt.Errorf("csv line %d: expected at least 3 columns (name,enroll,email)", line)
		}
		for _, field := range row {
			if !utf8.ValidString(field) {
				return nil, fmt.Errorf("csv line %d: %w", line, ErrInvalidEncoding)
			}
		}

		record := types.Record{
			types.FieldName:     types.StringPtr(row[0]),
			types.FieldEnroll:   types.StringPtr(row[1]),
			types.FieldEmail:    types.StringPtr(row[2]),
			types.FieldPosition: nil,
		}
		if len(row) > 3 && row[3] != "" {
			record[types.FieldPosition] = types.StringPtr(row[3])
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func isHeader(row []string) bool {
	if len(row) < 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if !strings.EqualFold(strings.TrimSpace(row[i]), csvColumns[i]) {
			return false
		}
	}
	return true
}

// ParseJSON reads a JSON array of flat objects whose values are strings or
// null.
func ParseJSON(data []byte) ([]types.Record, error) {
	// Unmarshal would silently replace invalid bytes with U+FFFD.
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	var raw []map[string]*string
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("records must be an array of objects with string or null values: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoRecords
	}

	records := make([]types.Record, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, fmt.Errorf("record %d is null", i)
		}
		records[i] = types.Record(obj)
	}
	return records, nil
}
