package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// AGGREGATORS — Grouping, Aggregation, and Sorting via TableView
// ============================================================================
// Grouping produces SubViews (index lists into the parent view).
// Missing cells are skipped by every aggregation except count of rows.
// ============================================================================

// Aggregations accepted by Aggregate and GroupAndAggregate.
var Aggregations = []string{"sum", "count", "mean", "median", "min", "max", "nunique"}

// GroupAndAggregate is the main entry point for the aggregation pipeline.
// Pipeline: group → aggregate → sort → limit. col is the measured column;
// it may be -1 for "count", which then counts rows.
func GroupAndAggregate(view TableView, by []int, agg string, col int, sortBy string, limit int) ([]Group, error) {
	agg = normalizeAggregation(agg)
	if !isAggregation(agg) {
		return nil, fmt.Errorf("unknown aggregation %q (use one of %s)", agg, strings.Join(Aggregations, ", "))
	}
	if col < 0 && agg != "count" {
		return nil, fmt.Errorf("aggregation %q needs a column", agg)
	}

	// 1. Group
	groups := groupByColumns(view, by)

	// 2. Aggregate
	for i := range groups {
		g := &groups[i]
		g.Count = g.View.Len()
		if col < 0 {
			g.Value = dataset.Number(float64(g.Count))
			continue
		}
		v, err := Aggregate(columnValues(g.View, col), agg)
		if err != nil {
			return nil, fmt.Errorf("%s of %s: %w", agg, view.Columns()[col].Name, err)
		}
		g.Value = v
	}

	// 3. Sort
	if err := SortGroups(groups, sortBy); err != nil {
		return nil, err
	}

	// 4. Limit
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// ============================================================================
// GROUPING
// ============================================================================

// groupByColumns buckets rows by their key tuple, in first-seen order.
// Rows with a missing key are dropped, as grouped aggregations usually do.
func groupByColumns(view TableView, by []int) []Group {
	if len(by) == 0 {
		return []Group{{View: view}}
	}

	grouped := make(map[string][]int)
	keys := make(map[string][]dataset.Value)
	order := make([]string, 0)

	for i := 0; i < view.Len(); i++ {
		tuple := make([]dataset.Value, len(by))
		var sb strings.Builder
		skip := false
		for j, c := range by {
			v := view.Value(i, c)
			if v.IsMissing() {
				skip = true
				break
			}
			tuple[j] = v
			fmt.Fprintf(&sb, "%d:%s\x1f", v.Kind(), v.String())
		}
		if skip {
			continue
		}
		key := sb.String()
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
			keys[key] = tuple
		}
		grouped[key] = append(grouped[key], i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{
			Keys: keys[key],
			View: newSubView(view, grouped[key]),
		})
	}
	return groups
}

// columnValues reads one column of a view.
func columnValues(view TableView, col int) []dataset.Value {
	out := make([]dataset.Value, view.Len())
	for i := range out {
		out[i] = view.Value(i, col)
	}
	return out
}

// ============================================================================
// AGGREGATION
// ============================================================================

// Aggregate reduces values with the named aggregation.
func Aggregate(values []dataset.Value, agg string) (dataset.Value, error) {
	switch normalizeAggregation(agg) {
	case "sum":
		total, _, err := SumValues(values)
		if err != nil {
			return dataset.Missing(), err
		}
		return dataset.Number(total), nil
	case "count":
		return dataset.Number(float64(CountValues(values))), nil
	case "mean":
		return MeanValues(values)
	case "median":
		return MedianValues(values)
	case "min":
		return ExtremeValue(values, -1)
	case "max":
		return ExtremeValue(values, 1)
	case "nunique":
		return dataset.Number(float64(len(UniqueValues(values)))), nil
	}
	return dataset.Missing(), fmt.Errorf("unknown aggregation %q", agg)
}

// SumValues adds numeric (and boolean) values, skipping missing. Returns the
// sum and how many values contributed.
func SumValues(values []dataset.Value) (float64, int, error) {
	var total float64
	n := 0
	for _, v := range values {
		f, ok, err := numericOf(v)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			total += f
			n++
		}
	}
	return total, n, nil
}

// CountValues counts non-missing values.
func CountValues(values []dataset.Value) int {
	n := 0
	for _, v := range values {
		if !v.IsMissing() {
			n++
		}
	}
	return n
}

// MeanValues averages numeric values; missing when there are none.
func MeanValues(values []dataset.Value) (dataset.Value, error) {
	total, n, err := SumValues(values)
	if err != nil || n == 0 {
		return dataset.Missing(), err
	}
	return dataset.Number(total / float64(n)), nil
}

// MedianValues returns the median of numeric values; missing when there are none.
func MedianValues(values []dataset.Value) (dataset.Value, error) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok, err := numericOf(v)
		if err != nil {
			return dataset.Missing(), err
		}
		if ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return dataset.Missing(), nil
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return dataset.Number(nums[mid]), nil
	}
	return dataset.Number((nums[mid-1] + nums[mid]) / 2), nil
}

// ExtremeValue returns the smallest (dir < 0) or largest (dir > 0) value.
// Values must be mutually comparable (all numbers, all dates or all text).
func ExtremeValue(values []dataset.Value, dir int) (dataset.Value, error) {
	best := dataset.Missing()
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		if best.IsMissing() {
			best = v
			continue
		}
		c, ok := v.Compare(best)
		if !ok {
			return dataset.Missing(), fmt.Errorf("cannot compare %s with %s", v.Kind(), best.Kind())
		}
		if c*dir > 0 {
			best = v
		}
	}
	return best, nil
}

// UniqueValues returns distinct non-missing values in first-seen order.
func UniqueValues(values []dataset.Value) []dataset.Value {
	seen := make(map[string]bool)
	var result []dataset.Value
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		key := fmt.Sprintf("%d:%s", v.Kind(), v.String())
		if !seen[key] {
			seen[key] = true
			result = append(result, v)
		}
	}
	return result
}

func numericOf(v dataset.Value) (float64, bool, error) {
	switch v.Kind() {
	case dataset.KindMissing:
		return 0, false, nil
	case dataset.KindNumber:
		return v.Num(), true, nil
	case dataset.KindBool:
		if v.BoolValue() {
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, fmt.Errorf("expected numbers, found %s value %q", v.Kind(), v.String())
}

func normalizeAggregation(agg string) string {
	agg = strings.ToLower(strings.TrimSpace(agg))
	switch agg {
	case "avg", "average":
		return "mean"
	case "size":
		return "count"
	}
	return agg
}

func isAggregation(agg string) bool {
	for _, a := range Aggregations {
		if a == agg {
			return true
		}
	}
	return false
}

// ============================================================================
// SORTING
// ============================================================================

// SortGroups sorts aggregate groups by the specified sort mode:
// "key" (default, ascending by group key), "key_desc", "value_desc",
// "value_asc" or "none" (first-seen order).
func SortGroups(groups []Group, sortBy string) error {
	switch sortBy {
	case "", "key", "label_asc":
		sort.SliceStable(groups, func(i, j int) bool { return compareKeys(groups[i].Keys, groups[j].Keys) < 0 })
	case "key_desc", "label_desc":
		sort.SliceStable(groups, func(i, j int) bool { return compareKeys(groups[i].Keys, groups[j].Keys) > 0 })
	case "value_desc":
		sort.SliceStable(groups, func(i, j int) bool {
			return compareForSort(groups[i].Value, groups[j].Value, true) < 0
		})
	case "value_asc":
		sort.SliceStable(groups, func(i, j int) bool {
			return compareForSort(groups[i].Value, groups[j].Value, false) < 0
		})
	case "none":
		// preserve grouping order
	default:
		return fmt.Errorf("unknown sort order %q (use key, key_desc, value_desc, value_asc or none)", sortBy)
	}
	return nil
}

func compareKeys(a, b []dataset.Value) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if c := compareForSort(a[i], b[i], false); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

// ============================================================================
// NUMERIC UTILITIES
// ============================================================================

// RoundTo rounds half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
