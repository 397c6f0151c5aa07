package driver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrMissingHeader = errors.New("csv header must contain name and phone columns")
	ErrEmptyRoster   = errors.New("csv contains no driver rows")
)

var headerAliases = map[string][]string{
	"name":  {"name", "isim", "İsim", "ad", "ad soyad"},
	"phone": {"phone", "telefon", "phone_number", "phonenumber", "tel"},
	"email": {"email", "e-mail", "eposta", "e-posta"},
}

type columns struct {
	name  int
	phone int
	email int
}

// ParseCSV reads a roster with a header row. Blank rows are skipped and a row
// without a name or phone fails the whole import. Phones are normalized when
// they match a known format and kept as written otherwise.
func ParseCSV(reader io.Reader) ([]Row, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyRoster)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []Row

	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}

		if isBlank(record) {
			continue
		}

		line, _ := csvReader.FieldPos(0)

		row := Row{
			Name:        field(record, cols.name),
			PhoneNumber: field(record, cols.phone),
			Email:       field(record, cols.email),
		}

		if row.Name == "" || row.PhoneNumber == "" {
			return nil, fmt.Errorf("%w: line %d: name and phone are required", ErrValidation, line)
		}

		normalized, phoneErr := NormalizePhone(row.PhoneNumber)
		if phoneErr == nil {
			row.PhoneNumber = normalized
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyRoster)
	}

	return rows, nil
}

func resolveColumns(header []string) (columns, error) {
	cols := columns{name: -1, phone: -1, email: -1}

	for idx, raw := range header {
		title := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

		switch {
		case cols.name < 0 && matchesAlias(title, "name"):
			cols.name = idx
		case cols.phone < 0 && matchesAlias(title, "phone"):
			cols.phone = idx
		case cols.email < 0 && matchesAlias(title, "email"):
			cols.email = idx
		}
	}

	if cols.name < 0 || cols.phone < 0 {
		return cols, fmt.Errorf("%w: %w", ErrValidation, ErrMissingHeader)
	}

	return cols, nil
}

func matchesAlias(title, column string) bool {
	for _, alias := range headerAliases[column] {
		if strings.EqualFold(title, alias) {
			return true
		}
	}

	return false
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}

	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}

	return true
}
