package email

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"

	"dounotify/internal/report"
)

const csvFilePattern = "extracao_dou_*.csv"

const (
	columnSearch   = "Consulta"
	columnGroup    = "Grupo"
	columnTerm     = "Termo de pesquisa"
	columnSection  = "Seção"
	columnURL      = "URL"
	columnTitle    = "Título"
	columnAbstract = "Resumo"
	columnDate     = "Data"
)

// csvColumn binds a header to the row field it exports.
type csvColumn struct {
	name  string
	value func(report.Row) string
}

var csvColumns = []csvColumn{
	{name: columnSearch, value: func(row report.Row) string { return row.Header }},
	{name: columnGroup, value: func(row report.Row) string { return row.Group }},
	{name: columnTerm, value: func(row report.Row) string { return row.Term }},
	{name: columnSection, value: func(row report.Row) string { return row.Match.Section }},
	{name: columnURL, value: func(row report.Row) string { return row.Match.Href }},
	{name: columnTitle, value: func(row report.Row) string { return row.Match.Title }},
	{name: columnAbstract, value: func(row report.Row) string { return row.Match.Abstract }},
	{name: columnDate, value: func(row report.Row) string { return row.Match.Date }},
}

// exportColumns selects columns for the whole report.
// Consulta is dropped when no block has a header; Grupo is dropped as soon as
// one block is ungrouped, even if other blocks carry named groups.
func exportColumns(rep report.Report) []csvColumn {
	dropSearch := !rep.HasHeaders()
	dropGroup := rep.UsesSingleGroup()

	out := make([]csvColumn, 0, len(csvColumns))
	for _, column := range csvColumns {
		if column.name == columnSearch && dropSearch {
			continue
		}
		if column.name == columnGroup && dropGroup {
			continue
		}
		out = append(out, column)
	}
	return out
}

// CSVHeader returns the header row used for rep.
// Params: search report.
// Returns: ordered column names after column dropping rules.
func CSVHeader(rep report.Report) []string {
	columns := exportColumns(rep)
	header := make([]string, 0, len(columns))
	for _, column := range columns {
		header = append(header, column.name)
	}
	return header
}

// RenderCSV flattens every match into one CSV row.
// Params: search report.
// Returns: UTF-8 CSV bytes with header row.
func RenderCSV(rep report.Report) ([]byte, error) {
	columns := exportColumns(rep)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(CSVHeader(rep)); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range report.Rows(rep) {
		record := make([]string, 0, len(columns))
		for _, column := range columns {
			record = append(record, column.value(row))
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSVTempFile stores the CSV export in a temporary file for attachment.
// Params: search report and directory (empty uses os.TempDir).
// Returns: file path, cleanup callback removing the file, and error.
func WriteCSVTempFile(rep report.Report, dir string) (string, func(), error) {
	body, err := RenderCSV(rep)
	if err != nil {
		return "", nil, err
	}
	file, err := os.CreateTemp(dir, csvFilePattern)
	if err != nil {
		return "", nil, fmt.Errorf("create csv temp file: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := file.Write(body); err != nil {
		_ = file.Close()
		cleanup()
		return "", nil, fmt.Errorf("write csv temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close csv temp file: %w", err)
	}
	return path, cleanup, nil
}
