package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoster() Roster {
	return Roster{
		Title:    "Food bank sorting",
		Subtitle: "Downtown branch",
		Headers:  []string{"Shift", "Volunteer", "Status"},
		Sections: []Section{
			{Heading: "Mon Jun 6, 2022", Rows: [][]string{{"09:00-11:00", "Ada Lovelace", "CONFIRMED"}}},
			{Heading: "Mon Jun 13, 2022", Rows: [][]string{{"09:00-11:00", "Grace Hopper", "PENDING"}, {"09:00-11:00", "", ""}}},
		},
	}
}

func TestCSVExporterFlattensSections(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(sampleRoster())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Day", "Shift", "Volunteer", "Status"}, records[0])
	assert.Equal(t, []string{"Mon Jun 13, 2022", "09:00-11:00", "Grace Hopper", "PENDING"}, records[2])
	assert.Equal(t, "csv", exporter.Extension())
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleRoster())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Roster{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Roster{})
	assert.Error(t, err)
}

func TestRosterRowCount(t *testing.T) {
	assert.Equal(t, 3, sampleRoster().RowCount())
}
