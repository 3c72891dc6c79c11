package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
)

// Columns is the canonical header, in write order.
var Columns = []string{
	"type", "constellation", "designator", "common_name", "norad_id",
	"intl_designator", "nominal_alt_km", "footprint_radius_km", "is_active",
}

// legacy column names accepted on read.
var columnAliases = map[string]string{
	"name":        "common_name",
	"sat_id":      "designator",
	"altitude_km": "nominal_alt_km",
}

// Load reads the catalog table at path. A missing file is seeded with
// Defaults (and written back when possible); an unreadable file falls back
// to Defaults. A table missing canonical columns is normalised and rewritten.
// Write failures are only logged.
func Load(path string, logger *slog.Logger) ([]Record, error) {
	records, migrate, err := readTable(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("catalog not found, seeding defaults", "path", path)
		records = Defaults()
		migrate = true
	case err != nil:
		logger.Warn("catalog unreadable, using defaults", "path", path, "error", err)
		records = Defaults()
		migrate = false
	case len(records) == 0:
		logger.Warn("catalog has no rows, using defaults", "path", path)
		records = Defaults()
		migrate = false
	}

	if migrate {
		if werr := Write(path, records); werr != nil {
			logger.Warn("catalog write-back failed", "path", path, "error", werr)
		} else {
			logger.Info("catalog normalised", "path", path, "rows", len(records))
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("catalog %s: %w", path, faults.ErrCatalogUnavailable)
	}
	logger.Debug("catalog loaded", "path", path, "rows", len(records))
	return records, nil
}

// readTable parses the CSV at path. migrate is true when any canonical
// column was missing from the header.
func readTable(path string) (records []Record, migrate bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	for legacy, canonical := range columnAliases {
		if _, ok := index[canonical]; ok {
			continue
		}
		if i, ok := index[legacy]; ok {
			index[canonical] = i
			migrate = true
		}
	}
	for _, c := range Columns {
		if _, ok := index[c]; !ok {
			migrate = true
		}
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("read row: %w", err)
		}
		field := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if isBlank(row) {
			continue
		}
		records = append(records, normalise(field))
	}
	return records, migrate, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func normalise(field func(string) string) Record {
	rec := Record{
		Type:              strings.ToUpper(orUnknown(field("type"))),
		Constellation:     strings.ToUpper(field("constellation")),
		Designator:        orUnknown(field("designator")),
		CommonName:        orUnknown(field("common_name")),
		NORADID:           parseNORAD(field("norad_id")),
		IntlDesignator:    orUnknown(field("intl_designator")),
		NominalAltKm:      parseFloat(field("nominal_alt_km")),
		FootprintRadiusKm: parseFloat(field("footprint_radius_km")),
		IsActive:          parseBool(field("is_active"), true),
	}
	if rec.Constellation == "" || rec.Constellation == Unknown {
		rec.Constellation = ConstellationFor(rec.Type)
	}
	if math.IsNaN(rec.NominalAltKm) {
		rec.NominalAltKm = DefaultAltitudeKm(rec.Type)
	}
	return rec
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// parseNORAD accepts integer text, including spreadsheet-style "33591.0".
func parseNORAD(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y":
		return true
	case "false", "f", "0", "no", "n":
		return false
	}
	return def
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Write persists records with the canonical header. The file is replaced
// atomically.
func Write(path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create catalog dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*.csv")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		norad := ""
		if r.HasNORAD() {
			norad = strconv.Itoa(r.NORADID)
		}
		row := []string{
			r.Type, r.Constellation, r.Designator, r.CommonName, norad,
			r.IntlDesignator, formatFloat(r.NominalAltKm), formatFloat(r.FootprintRadiusKm),
			strconv.FormatBool(r.IsActive),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadAliases reads an optional designator,name table. Keys are upper-cased.
// A missing or invalid file yields an empty map.
func LoadAliases(path string) map[string]string {
	aliases := make(map[string]string)
	if path == "" {
		return aliases
	}
	f, err := os.Open(path)
	if err != nil {
		return aliases
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		return make(map[string]string)
	}
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(row[0]))
		name := strings.TrimSpace(row[1])
		if i == 0 && key == "DESIGNATOR" {
			continue
		}
		if key != "" && name != "" {
			aliases[key] = name
		}
	}
	return aliases
}
