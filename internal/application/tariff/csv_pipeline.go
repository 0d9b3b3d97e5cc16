package tariff

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

const importChunkRows = 2000

const maxRawLineBytes = 1000

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// referenceSynonyms are the header names accepted for the supplier
// reference column, checked in order.
var referenceSynonyms = []string{
	"référence", "reference", "réf", "ref", "default_code", "sku",
	"code article", "article", "reference fournisseur",
}

// ParsedFile is one downloaded tariff file decoded, split into rows and
// column-resolved, ready for chunked scanning.
type ParsedFile struct {
	FileName string
	Encoding string

	rows     [][]string
	params   domain.CSVParams
	columns  columnMap
	refClean string
	seen     map[string]struct{}
}

// ParseFile decodes and splits the downloaded bytes using the provider's
// reader parameters.
func ParseFile(fileName string, data []byte, p domain.Provider) (*ParsedFile, error) {
	params, err := p.CSVParams()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}

	text, selected := decodeCSVBytes(data, params.Encoding)
	header, rows, err := splitRows(text, params.Delimiter, params.HasHeader)
	if err != nil {
		return nil, err
	}

	base := fileName
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}

	return &ParsedFile{
		FileName: fileName,
		Encoding: selected,
		rows:     rows,
		params:   params,
		columns:  resolveColumns(header, p.BarcodeCandidates(), p.PriceColumnName()),
		refClean: nonAlnum.ReplaceAllString(base, ""),
		seen:     make(map[string]struct{}),
	}, nil
}

// Rows returns the number of data rows in the file.
func (f *ParsedFile) Rows() int64 {
	return int64(len(f.rows))
}

// ScanResult is the outcome of one chunked pass over the file rows.
type ScanResult struct {
	Records     []domain.Record
	Quarantined []domain.QuarantinedRow
	Deduped     int64
	NextRow     int64
	Done        bool
}

// Scan processes up to maxRows data rows starting at fromRow. Calls must
// only move forward: the intra-file duplicate set accumulates across
// calls, so resuming at a checkpoint requires replaying the earlier rows
// through Scan first.
func (f *ParsedFile) Scan(fromRow int64, maxRows int) ScanResult {
	res := ScanResult{NextRow: fromRow}
	total := f.Rows()
	for res.NextRow < total && int(res.NextRow-fromRow) < maxRows {
		idx := res.NextRow
		row := f.rows[idx]
		res.NextRow++

		values := f.extract(row)

		if values.barcode != "" && values.ref != "" {
			key := values.ref + "\x00" + values.barcode
			if _, dup := f.seen[key]; dup {
				res.Deduped++
				continue
			}
			f.seen[key] = struct{}{}
		}

		if values.barcode == "" {
			res.Quarantined = append(res.Quarantined, domain.QuarantinedRow{
				RowNumber: idx + 1,
				Reason:    "missing barcode",
				RawLine:   f.rawLine(row),
			})
			continue
		}
		if !values.priceOK {
			reason := "missing price"
			if strings.TrimSpace(values.rawPrice) != "" {
				reason = fmt.Sprintf("invalid price %q", clip(values.rawPrice, 40))
			}
			res.Quarantined = append(res.Quarantined, domain.QuarantinedRow{
				RowNumber: idx + 1,
				Barcode:   values.barcode,
				Reason:    reason,
				RawLine:   f.rawLine(row),
			})
			continue
		}

		res.Records = append(res.Records, domain.Record{
			Barcode:    values.barcode,
			Price:      values.price,
			SourceFile: f.FileName,
		})
	}
	res.Done = res.NextRow >= total
	return res
}

type rowValues struct {
	barcode  string
	price    float64
	priceOK  bool
	rawPrice string
	ref      string
}

func (f *ParsedFile) extract(row []string) rowValues {
	var v rowValues

	if !f.columns.hasHeader {
		// No header row: the first non-empty cell is the barcode, the
		// next one the price.
		for _, cell := range row {
			s := strings.TrimSpace(cell)
			if s == "" {
				continue
			}
			if v.barcode == "" {
				v.barcode = s
				continue
			}
			v.rawPrice = s
			v.price, v.priceOK = parsePrice(s, f.params.DecimalSeparator)
			break
		}
		v.ref = strings.ToUpper(f.refClean)
		return v
	}

	for _, idx := range f.columns.barcode {
		if idx < len(row) {
			if s := strings.TrimSpace(row[idx]); s != "" {
				v.barcode = s
				break
			}
		}
	}
	if v.barcode == "" {
		for _, idx := range f.columns.fallback {
			if idx < len(row) {
				if s := strings.TrimSpace(row[idx]); s != "" {
					v.barcode = s
					break
				}
			}
		}
	}

	if f.columns.price >= 0 && f.columns.price < len(row) {
		v.rawPrice = row[f.columns.price]
		v.price, v.priceOK = parsePrice(v.rawPrice, f.params.DecimalSeparator)
	}

	ref := ""
	if f.columns.ref >= 0 && f.columns.ref < len(row) {
		ref = strings.TrimSpace(row[f.columns.ref])
	}
	if ref == "" {
		ref = f.refClean
	}
	v.ref = strings.ToUpper(nonAlnum.ReplaceAllString(ref, ""))
	return v
}

func (f *ParsedFile) rawLine(row []string) string {
	return clip(strings.Join(row, f.params.Delimiter), maxRawLineBytes)
}

type columnMap struct {
	hasHeader bool
	barcode   []int
	// fallback holds every column whose header contains "code barre",
	// tried when none of the configured candidates yields a value.
	fallback []int
	price    int
	ref      int
}

func resolveColumns(header []string, barcodeCandidates []string, priceColumn string) columnMap {
	cm := columnMap{price: -1, ref: -1, hasHeader: len(header) > 0}
	if !cm.hasHeader {
		return cm
	}

	exact := make(map[string]int, len(header))
	lower := make(map[string]int, len(header))
	for idx, h := range header {
		name := strings.TrimSpace(h)
		exact[name] = idx
		lower[strings.ToLower(name)] = idx
	}
	lookup := func(name string) int {
		name = strings.TrimSpace(name)
		if idx, ok := exact[name]; ok {
			return idx
		}
		if idx, ok := lower[strings.ToLower(name)]; ok {
			return idx
		}
		return -1
	}

	for _, name := range barcodeCandidates {
		if idx := lookup(name); idx >= 0 {
			cm.barcode = append(cm.barcode, idx)
		}
	}
	for idx, h := range header {
		if strings.Contains(strings.ToLower(h), "code barre") {
			cm.fallback = append(cm.fallback, idx)
		}
	}
	cm.price = lookup(priceColumn)
	for _, name := range referenceSynonyms {
		if idx := lookup(name); idx >= 0 {
			cm.ref = idx
			break
		}
	}
	return cm
}

// parsePrice normalizes values like "1 234,56": the configured decimal
// separator becomes "." and digit-group spaces are dropped.
func parsePrice(raw, decimalSep string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if decimalSep != "" && decimalSep != "." {
		s = strings.ReplaceAll(s, decimalSep, ".")
	}
	s = strings.ReplaceAll(s, " ", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// splitRows turns decoded text into rows. A single-character delimiter
// goes through encoding/csv with quoting support; longer delimiters use
// a plain per-line split, which is how suppliers sending "||"-separated
// exports expect to be read.
func splitRows(text, delimiter string, hasHeader bool) ([]string, [][]string, error) {
	if utf8.RuneCountInString(delimiter) == 1 {
		r := csv.NewReader(strings.NewReader(text))
		comma, _ := utf8.DecodeRuneInString(delimiter)
		r.Comma = comma
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		all, err := r.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if hasHeader {
			if len(all) == 0 {
				return nil, nil, nil
			}
			return all[0], all[1:], nil
		}
		return nil, all, nil
	}

	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, strings.Split(strings.TrimRight(line, "\r"), delimiter))
	}
	if hasHeader {
		if len(rows) == 0 {
			return nil, nil, nil
		}
		return rows[0], rows[1:], nil
	}
	return nil, rows, nil
}

// decodeCSVBytes picks the first candidate encoding that decodes the
// whole file. The scan covers every byte: a shorter probe window lets
// accents past it through corrupted.
func decodeCSVBytes(data []byte, configured string) (string, string) {
	seen := make(map[string]bool)
	var candidates []string
	for _, name := range append([]string{configured}, "utf-8-sig", "cp1252", "latin-1") {
		canon := canonicalEncoding(name)
		if canon == "" || seen[canon] {
			continue
		}
		seen[canon] = true
		candidates = append(candidates, canon)
	}
	for _, canon := range candidates {
		if text, ok := tryDecode(data, canon); ok {
			return strings.TrimPrefix(text, "\uFEFF"), canon
		}
	}
	text := strings.ToValidUTF8(string(data), string(utf8.RuneError))
	return strings.TrimPrefix(text, "\uFEFF"), "utf-8"
}

func tryDecode(data []byte, canon string) (string, bool) {
	switch canon {
	case "utf-8":
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	case "cp1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		return string(out), true
	case "latin-1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
	return "", false
}

func canonicalEncoding(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8", "utf-8-sig", "utf8-sig":
		return "utf-8"
	case "cp1252", "windows-1252", "windows1252":
		return "cp1252"
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return "latin-1"
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
