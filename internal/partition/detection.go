package partition

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sqlflowx/transformengine/internal/model"
)

// suffixPattern pairs a regex for a table-name suffix with the granularity
// and time-parsing logic needed to build a TimeRange from its capture
// groups (spec.md §4.4, ordered list).
type suffixPattern struct {
	re          *regexp.Regexp
	granularity model.Granularity
	parse       func(match []string) (time.Time, error)
}

var suffixPatterns = []suffixPattern{
	{regexp.MustCompile(`^p_(\d{4})(\d{2})(\d{2})$`), model.GranularityDay, parseYMD},
	{regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`), model.GranularityDay, parseYMD},
	{regexp.MustCompile(`^p_(\d{4})(\d{2})$`), model.GranularityMonth, parseYM},
	{regexp.MustCompile(`^(\d{4})(\d{2})$`), model.GranularityMonth, parseYM},
	{regexp.MustCompile(`^p_(\d{4})$`), model.GranularityYear, parseY},
	{regexp.MustCompile(`^(\d{4})$`), model.GranularityYear, parseY},
}

func parseYMD(g []string) (time.Time, error) {
	y, _ := strconv.Atoi(g[1])
	mo, _ := strconv.Atoi(g[2])
	d, _ := strconv.Atoi(g[3])
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC), nil
}

func parseYM(g []string) (time.Time, error) {
	y, _ := strconv.Atoi(g[1])
	mo, _ := strconv.Atoi(g[2])
	return time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, time.UTC), nil
}

func parseY(g []string) (time.Time, error) {
	y, _ := strconv.Atoi(g[1])
	return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func endOf(start time.Time, g model.Granularity) time.Time {
	switch g {
	case model.GranularityDay:
		return start.AddDate(0, 0, 1)
	case model.GranularityMonth:
		return start.AddDate(0, 1, 0)
	case model.GranularityYear:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// detectPatternBased queries the catalog for tables named "{base}_%" and
// parses their suffix against the ordered pattern list, first match wins.
func (m *Manager) detectPatternBased(ctx context.Context, table string) ([]model.PartitionInfo, error) {
	candidates, err := m.eng.TablesLike(ctx, table+"_%")
	if err != nil {
		return nil, err
	}

	var out []model.PartitionInfo
	for _, candidate := range candidates {
		suffix := strings.TrimPrefix(candidate, table+"_")
		if suffix == candidate {
			continue
		}
		for _, p := range suffixPatterns {
			match := p.re.FindStringSubmatch(suffix)
			if match == nil {
				continue
			}
			start, perr := p.parse(match)
			if perr != nil {
				continue
			}
			tr, terr := model.NewTimeRange(start, endOf(start, p.granularity), p.granularity)
			if terr != nil {
				continue
			}
			out = append(out, model.PartitionInfo{
				TableName: table, PartitionName: candidate,
				PartitionType: model.PartitionTimeBased, TimeRange: &tr,
			})
			break
		}
	}
	return out, nil
}

var filePathPatterns = []struct {
	re          *regexp.Regexp
	granularity model.Granularity
	parse       func(match []string) (time.Time, error)
}{
	{regexp.MustCompile(`year=(\d{4})/month=(\d{2})/day=(\d{2})`), model.GranularityDay, func(g []string) (time.Time, error) { return parseYMD(g) }},
	{regexp.MustCompile(`dt=(\d{4})-(\d{2})-(\d{2})`), model.GranularityDay, func(g []string) (time.Time, error) { return parseYMD(g) }},
	{regexp.MustCompile(`date=(\d{4})(\d{2})(\d{2})`), model.GranularityDay, func(g []string) (time.Time, error) { return parseYMD(g) }},
	{regexp.MustCompile(`(?:^|[^0-9])(\d{8})(?:[^0-9]|$)`), model.GranularityDay, func(g []string) (time.Time, error) {
		s := g[1]
		return parseYMD([]string{s, s[0:4], s[4:6], s[6:8]})
	}},
}

// detectFilePathBased scans catalog-reported file paths for embedded date
// tokens (spec.md §4.4, method 2).
func (m *Manager) detectFilePathBased(ctx context.Context, table string) ([]model.PartitionInfo, error) {
	paths, err := m.eng.FilePaths(ctx, table)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]string{}
	starts := map[string]time.Time{}
	grans := map[string]model.Granularity{}

	for _, path := range paths {
		for _, p := range filePathPatterns {
			match := p.re.FindStringSubmatch(path)
			if match == nil {
				continue
			}
			start, perr := p.parse(match)
			if perr != nil {
				continue
			}
			key := start.Format("2006-01-02")
			grouped[key] = append(grouped[key], path)
			starts[key] = start
			grans[key] = p.granularity
			break
		}
	}

	var out []model.PartitionInfo
	for key, files := range grouped {
		start := starts[key]
		g := grans[key]
		tr, terr := model.NewTimeRange(start, endOf(start, g), g)
		if terr != nil {
			continue
		}
		out = append(out, model.PartitionInfo{
			TableName: table, PartitionName: table + "_" + tr.PartitionName(),
			PartitionType: model.PartitionTimeBased, TimeRange: &tr, FilePaths: files,
		})
	}
	return out, nil
}

// detectVirtual groups table into daily buckets via GROUP BY DATE_TRUNC when
// no physical partitions were found (spec.md §4.4, method 3). Granularity
// is fixed at DAY, a documented default (DESIGN.md Open Question decision).
func (m *Manager) detectVirtual(ctx context.Context, table, timeColumn string) ([]model.PartitionInfo, error) {
	qTable := quoteOrRaw(table)
	qCol := quoteOrRaw(timeColumn)

	query := fmt.Sprintf(
		"SELECT DATE_TRUNC('day', %s) AS bucket, COUNT(*) AS cnt FROM %s GROUP BY bucket ORDER BY bucket",
		qCol, qTable)
	result, err := m.eng.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	rows, err := result.FetchAll()
	if err != nil {
		return nil, err
	}

	var out []model.PartitionInfo
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		start, ok := row[0].(time.Time)
		if !ok {
			continue
		}
		count := toInt64(row[1])

		tr, terr := model.NewTimeRange(start, endOf(start, model.GranularityDay), model.GranularityDay)
		if terr != nil {
			continue
		}
		out = append(out, model.PartitionInfo{
			TableName: table, PartitionName: table + "_" + tr.PartitionName(),
			PartitionType: model.PartitionVirtual, TimeRange: &tr, ColumnName: timeColumn, RowCount: count,
		})
	}
	return out, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
