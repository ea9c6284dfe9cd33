package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/forj-go/pkg/types"
)

func TestParseCSV(t *testing.T) {
	input := "Ann,E001,ann@example.com,Winner\r\n" +
		"Bob,E002,bob@example.com\n" +
		"\n" +
		"Cy,E003,cy@example.com,\n"

	records, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	name, _ := records[0].Get(types.FieldName)
	assert.Equal(t, "Ann", name)
	position, ok := records[0].Get(types.FieldPosition)
	assert.True(t, ok)
	assert.Equal(t, "Winner", position)

	for _, r := range records[1:] {
		_, ok := r.Get(types.FieldPosition)
		assert.False(t, ok, "missing or empty position is null")
		assert.Contains(t, r, types.FieldPosition)
	}
}

func TestParseCSV_Header(t *testing.T) {
	records, err := ParseCSV(strings.NewReader("Name,Enroll,Email,Position\nAnn,E001,ann@example.com,\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)

	email, _ := records[0].Get(types.FieldEmail)
	assert.Equal(t, "ann@example.com", email)
}

func TestParseCSV_QuotedComma(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(`"Doe, Jane",E9,jane@example.com,"1st, overall"` + "\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)

	name, _ := records[0].Get(types.FieldName)
	assert.Equal(t, "Doe, Jane", name)
	position, _ := records[0].Get(types.FieldPosition)
	assert.Equal(t, "1st, overall", position)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Ann,E001\n"))
	assert.Error(t, err)

	_, err = ParseCSV(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = ParseCSV(strings.NewReader("name,enroll,email\n"))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestParseJSON(t *testing.T) {
	records, err := ParseJSON([]byte(`[{"name":"Ann","email":"ann@example.com","position":null}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, ok := records[0].Get(types.FieldPosition)
	assert.False(t, ok)
	assert.Contains(t, records[0], types.FieldPosition)

	for _, bad := range []string{`{}`, `[{"name":1}]`, `[null]`, `[]`, `not json`} {
		_, err := ParseJSON([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestParseCSV_InvalidUTF8(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Ann,E001,ann@example.com\nB\xffb,E002,bob@example.com\n"))
	require.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseJSON_InvalidUTF8(t *testing.T) {
	_, err := ParseJSON([]byte("[{\"name\":\"B\xffb\"}]"))
	require.ErrorIs(t, err, ErrInvalidEncoding)
}
