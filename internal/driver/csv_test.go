package driver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCSVCountsNonEmptyRows(t *testing.T) {
	input := "name,phone,email\n" +
		"Ali Yilmaz,0555 123 45 67,ali@example.com\n" +
		",,\n" +
		"\n" +
		"Ayse Kaya,5551234568,\n" +
		"John Doe,+447700900123,john@example.com\n"

	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows {
		require.NotEmpty(t, row.Name)
		require.NotEmpty(t, row.PhoneNumber)
	}

	require.Equal(t, "+905551234567", rows[0].PhoneNumber)
	require.Equal(t, "ali@example.com", rows[0].Email)
	require.Equal(t, "+905551234568", rows[1].PhoneNumber)
	require.Equal(t, "+447700900123", rows[2].PhoneNumber)
}

func TestParseCSVHeaderAliases(t *testing.T) {
	input := "\ufeffİsim,Telefon\nMehmet,905551112233\n"

	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Mehmet", rows[0].Name)
	require.Equal(t, "+905551112233", rows[0].PhoneNumber)
}

func TestParseCSVColumnOrderIndependent(t *testing.T) {
	input := "Phone,Email,Name\n5551234567,a@b.co,Veli\n"

	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, Row{Name: "Veli", PhoneNumber: "+905551234567", Email: "a@b.co"}, rows[0])
}

func TestParseCSVRejectsInvalidRows(t *testing.T) {
	cases := map[string]string{
		"missing header": "first,second\nAli,5551234567\n",
		"missing name":   "name,phone\n,5551234567\n",
		"missing phone":  "name,phone\nAli,\n",
		"no data rows":   "name,phone\n\n",
		"empty input":    "",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(input))
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestParseCSVKeepsUnrecognizedPhones(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader("name,phone\nAli,555-1234\nVeli,05551234567\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "555-1234", rows[0].PhoneNumber)
	require.Equal(t, "+905551234567", rows[1].PhoneNumber)
}

func TestParseCSVReportsLine(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("name,phone\nAli,5551234567\nVeli,\n"))
	require.ErrorContains(t, err, "line 3")
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"905551234567":     "+905551234567",
		"+90 555 123 4567": "+905551234567",
		"05551234567":      "+905551234567",
		"5551234567":       "+905551234567",
		"(555) 123-4567":   "+905551234567",
		"+14155550100":     "+14155550100",
	}

	for input, expected := range cases {
		got, err := NormalizePhone(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, got, input)
	}

	_, err := NormalizePhone("12345")
	require.ErrorIs(t, err, ErrInvalidPhone)

	_, err = NormalizePhone("")
	require.ErrorIs(t, err, ErrInvalidPhone)
}
