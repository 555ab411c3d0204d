package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PeriodStat files seen in one year/month of the raw tree
type PeriodStat struct {
	Year    string `json:"year"`
	Month   string `json:"month"`
	Regions int    `json:"regions"`
	Files   int    `json:"files"`
	Failed  int    `json:"failed"` // files whose last result was an error
}

var monthNumbers = map[string]int{
	"ENERO": 1, "FEBRERO": 2, "MARZO": 3, "ABRIL": 4, "MAYO": 5, "JUNIO": 6, "JULIO": 7,
	"AGOSTO": 8, "SETIEMBRE": 9, "SEPTIEMBRE": 9, "OCTUBRE": 10, "NOVIEMBRE": 11, "DICIEMBRE": 12,
}

// MonthNumber 1-12 for a Spanish month folder name, 0 when unknown
func MonthNumber(month string) int {
	return monthNumbers[strings.ToUpper(strings.TrimSpace(month))]
}

// ListPeriods year/month periods with processed files, newest first. An empty form means all forms.
// Each file counts once, with the status of its latest run.
func (s *Store) ListPeriods(form string) ([]PeriodStat, error) {
	rows, err := s.db.Query(`
		WITH latest AS (
			SELECT form, path, MAX(id) AS id
			FROM file_results
			WHERE ? = '' OR form = ?
			GROUP BY form, path
		)
		SELECT
			f.year,
			f.month,
			COUNT(DISTINCT f.region),
			COUNT(1),
			SUM(CASE WHEN f.status = 'error' THEN 1 ELSE 0 END)
		FROM file_results f
		JOIN latest l ON l.id = f.id
		GROUP BY f.year, f.month
	`, form, form)
	if err != nil {
		return nil, fmt.Errorf("query periods failed: %w", err)
	}
	defer rows.Close()

	var out []PeriodStat
	for rows.Next() {
		var it PeriodStat
		if err := rows.Scan(&it.Year, &it.Month, &it.Regions, &it.Files, &it.Failed); err != nil {
			return nil, fmt.Errorf("scan periods failed: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate periods failed: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		yi, _ := strconv.Atoi(out[i].Year)
		yj, _ := strconv.Atoi(out[j].Year)
		if yi != yj {
			return yi > yj
		}
		mi, mj := MonthNumber(out[i].Month), MonthNumber(out[j].Month)
		if mi != mj {
			return mi > mj
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}
