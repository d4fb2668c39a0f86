package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wardroster/pkg/domain"
)

func TestHandoverWritesOrderedRows(t *testing.T) {
	admitted := time.Date(2024, 5, 6, 7, 30, 0, 0, time.UTC)
	patients := []domain.PatientRecord{
		{ID: "a", Room: "3", Details: domain.Details{Name: "Rossi", Age: 81, Priority: domain.PriorityAlert, Management: "O2 2L"}, AdmissionDate: admitted},
		{ID: "b", Room: "1", Details: domain.Details{Name: "Bianchi", Age: 45, Priority: domain.PriorityDimissione}},
	}

	out, err := Handover(patients, "1715000000000_abcd1234", admitted)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, SheetName, f.GetSheetName(f.GetActiveSheetIndex()))
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Contains(t, rows[0][0], "1715000000000_abcd1234")
	assert.Equal(t, Header, rows[1])
	assert.Equal(t, []string{"3", "Rossi", "81", "alert", "", "", "O2 2L", "", "2024-05-06 07:30"}, rows[2])
	assert.Equal(t, "Bianchi", rows[3][1])
	assert.Equal(t, "dimissione", rows[3][3])
}

func TestHandoverEmptyRoster(t *testing.T) {
	out, err := Handover(nil, "", time.Now())
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
