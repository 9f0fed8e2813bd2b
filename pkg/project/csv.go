package project

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// CSVPreview is the header and first rows of a csv file
type CSVPreview struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ReadCSVPreview reads the header of the csv file at path followed by up to
// maxRows records. Malformed records count against maxRows but are left out
// of the result.
func ReadCSVPreview(path string, maxRows int) (*CSVPreview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &CSVPreview{Headers: []string{}, Rows: [][]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}

	ret := CSVPreview{
		Headers: headers,
		Rows:    [][]string{},
	}

	for range max(maxRows, 0) {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv: %w", err)
		}

		ret.Rows = append(ret.Rows, rec)
	}

	return &ret, nil
}
