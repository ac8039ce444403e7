package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Observations"

// Export handles GET /observations/export: the enriched list as xlsx, one row
// per observation and one column per dotted leaf path.
func (h *ObservationHandler) Export(w http.ResponseWriter, r *http.Request) {
	opts, err := h.readOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts.GeoJSON, opts.Minimal = false, false

	docs, err := h.pipeline.Documents(r.Context(), caller(r), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	f, err := createObservationWorkbook(docs)
	if err != nil {
		h.fail(w, r, fmt.Errorf("build workbook: %w", err))
		return
	}
	defer f.Close()

	buffer, err := f.WriteToBuffer()
	if err != nil {
		h.fail(w, r, fmt.Errorf("write workbook: %w", err))
		return
	}
	h.metrics.ObservationsServed.WithLabelValues("xlsx").Add(float64(len(docs)))

	filename := fmt.Sprintf("observations_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buffer.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buffer.Bytes())
}

// createObservationWorkbook writes a header row of column paths followed by
// one row per document. id and createdAt lead, the rest are sorted.
func createObservationWorkbook(docs []map[string]any) (*excelize.File, error) {
	rows := make([]map[string]any, len(docs))
	seen := map[string]bool{}
	for i, d := range docs {
		rows[i] = map[string]any{}
		flattenInto(rows[i], "", d)
		for k := range rows[i] {
			seen[k] = true
		}
	}
	headers := exportHeaders(seen)

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#4472C4"},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil, err
	}

	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(exportSheet, cell, header)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}
	for i, row := range rows {
		for col, header := range headers {
			value, ok := row[header]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}
	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		f.SetColWidth(exportSheet, "A", last, 20)
	}
	return f, nil
}

func exportHeaders(seen map[string]bool) []string {
	lead := []string{"id", "createdAt"}
	var rest []string
	for k := range seen {
		if !slices.Contains(lead, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)

	headers := make([]string, 0, len(seen))
	for _, k := range lead {
		if seen[k] {
			headers = append(headers, k)
		}
	}
	return append(headers, rest...)
}

// flattenInto writes every leaf of v under its dotted path. Array elements
// are addressed by index.
func flattenInto(out map[string]any, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flattenInto(out, join(k), child)
		}
	case []any:
		for i, child := range t {
			flattenInto(out, join(strconv.Itoa(i)), child)
		}
	case []string:
		for i, child := range t {
			out[join(strconv.Itoa(i))] = child
		}
	case nil:
	default:
		if prefix != "" {
			out[prefix] = t
		}
	}
}
