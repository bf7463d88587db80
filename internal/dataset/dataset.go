package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gridsim/internal/model"
)

var ErrMalformedRecord = errors.New("malformed training record")

// Header is written by Write and skipped by Read when present.
var Header = []string{"x", "y", "type", "cost"}

// Read parses x,y,type,cost rows. A header row and blank lines are skipped; a
// missing cost takes the type's default.
func Read(in io.Reader) ([]model.Record, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records := make([]model.Record, 0, 64)
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read training csv row %d: %w", line, err)
		}
		if blankRecord(row) {
			continue
		}
		if line == 1 && isHeader(row) {
			continue
		}
		record, err := parseRecord(row, line)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func ReadFile(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func parseRecord(row []string, line int) (model.Record, error) {
	if len(row) < 3 {
		return model.Record{}, fmt.Errorf("%w: row %d has %d fields, want at least 3", ErrMalformedRecord, line, len(row))
	}
	x, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: row %d x: %v", ErrMalformedRecord, line, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: row %d y: %v", ErrMalformedRecord, line, err)
	}
	t, err := model.ParseCellType(row[2])
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: row %d: %v", ErrMalformedRecord, line, err)
	}
	cost := model.DefaultCost(t)
	if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		cost, err = strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return model.Record{}, fmt.Errorf("%w: row %d cost: %v", ErrMalformedRecord, line, err)
		}
	}
	return model.Record{X: x, Y: y, Type: t, Cost: cost}, nil
}

func isHeader(row []string) bool {
	return strings.EqualFold(strings.TrimSpace(row[0]), "x")
}

func blankRecord(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Write emits records with a header row.
func Write(out io.Writer, records []model.Record) error {
	writer := csv.NewWriter(out)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.X),
			strconv.Itoa(r.Y),
			string(r.Type),
			strconv.FormatFloat(r.Cost, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// FromCells turns observed cells, such as a discovery map, into training records.
func FromCells(cells []model.Cell) []model.Record {
	out := make([]model.Record, 0, len(cells))
	for _, c := range cells {
		out = append(out, model.Record{X: c.X, Y: c.Y, Type: c.Type, Cost: c.Cost})
	}
	return out
}
