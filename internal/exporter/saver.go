package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Saver writes result and bar records to one file per call.
type Saver interface {
	SaveResults(recs []ResultRecord, path string) error
	SaveBars(recs []BarRecord, path string) error
	Extension() string
}

// New returns the saver for format: csv, json or parquet.
func New(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	default:
		return nil, fmt.Errorf("exporter: unsupported format %q (use csv, json or parquet)", format)
	}
}

type csvRecord interface {
	header() []string
	row() []string
}

// CSVSaver writes records as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveResults(recs []ResultRecord, path string) error { return writeCSV(path, recs) }

func (CSVSaver) SaveBars(recs []BarRecord, path string) error { return writeCSV(path, recs) }

func writeCSV[T csvRecord](path string, recs []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	var zero T
	if err := w.Write(zero.header()); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(r.row()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// JSONSaver writes records as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) SaveResults(recs []ResultRecord, path string) error { return writeJSON(path, recs) }

func (JSONSaver) SaveBars(recs []BarRecord, path string) error { return writeJSON(path, recs) }

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// ParquetSaver writes records as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) SaveResults(recs []ResultRecord, path string) error {
	return parquet.WriteFile(path, recs)
}

func (ParquetSaver) SaveBars(recs []BarRecord, path string) error {
	return parquet.WriteFile(path, recs)
}
