// reshape.go
package processor

import (
	"math"
	"sort"
	"time"

	"RentalInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// MaxCompareCities 城市对比最多同时展示的城市数
const MaxCompareCities = 3

// USStates 州选择器的可选值
var USStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL",
	"GA", "HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME",
	"MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH",
	"NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI",
	"SC", "SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

// Dated 带日期列名的长表记录
type Dated interface {
	DateToken() string
}

// LongRecord 宽表转长表后的一行
type LongRecord struct {
	IDs   map[string]string `json:"ids"`
	Date  string            `json:"date"`
	Value float64           `json:"value"`
}

func (r LongRecord) DateToken() string { return r.Date }

// StatePoint 某州某月的均值
type StatePoint struct {
	State string  `json:"state"`
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func (p StatePoint) DateToken() string { return p.Date }

// StateValue 某州在时间范围内的均值
type StateValue struct {
	State string  `json:"state"`
	Value float64 `json:"value"`
}

// DateRange 闭区间，构造时按先后排序
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(a, b time.Time) DateRange {
	if b.Before(a) {
		a, b = b, a
	}
	return DateRange{Start: a, End: b}
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Melt 宽表转长表，每个日期列展开为一行，缺失值跳过
func Melt(df dataframe.DataFrame, idVars []string) []LongRecord {
	dates := dateColumns(df)
	ids := make([][]string, len(idVars))
	for i, name := range idVars {
		if utils.HasColumn(df, name) {
			ids[i] = df.Col(name).Records()
		}
	}

	rows := dateMatrix(df, dates)
	out := make([]LongRecord, 0, len(rows)*len(dates))
	for c, date := range dates {
		for r, row := range rows {
			if math.IsNaN(row[c]) {
				continue
			}
			rec := LongRecord{IDs: make(map[string]string, len(idVars)), Date: date, Value: row[c]}
			for i, name := range idVars {
				if ids[i] != nil {
					rec.IDs[name] = ids[i][r]
				}
			}
			out = append(out, rec)
		}
	}
	return out
}

// StateMeans 按州分组，计算每个日期列的均值，结果按州和日期排序
func StateMeans(df dataframe.DataFrame, stateCol string) []StatePoint {
	if df.Nrow() == 0 || !utils.HasColumn(df, stateCol) {
		return nil
	}

	// GroupBy遇到空值会整体失败，先去掉州为空的行
	stateSeries := df.Col(stateCol)
	var keep []int
	for i := 0; i < stateSeries.Len(); i++ {
		if !isNull(stateSeries, i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	df, err := keepRows(df, keep)
	if err != nil {
		return nil
	}

	groups := df.GroupBy(stateCol).GetGroups()
	states := make([]string, 0, len(groups))
	for state := range groups {
		if state == "NaN" || state == "" {
			continue
		}
		states = append(states, state)
	}
	sort.Strings(states)

	dates := dateColumns(df)
	out := make([]StatePoint, 0, len(states)*len(dates))
	for _, state := range states {
		group := groups[state]
		for _, date := range dates {
			mean, ok := nanMean(group.Col(date).Float())
			if !ok {
				continue
			}
			out = append(out, StatePoint{State: state, Date: date, Value: mean})
		}
	}
	return out
}

// FilterByDate 保留日期在范围内的记录，日期无法解析的记录被丢弃
func FilterByDate[T Dated](items []T, r DateRange) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		t, err := utils.ParseDateToken(item.DateToken())
		if err != nil {
			continue
		}
		if r.Contains(t) {
			out = append(out, item)
		}
	}
	return out
}

// FilterState 只保留指定州的数据点
func FilterState(points []StatePoint, state string) []StatePoint {
	out := make([]StatePoint, 0, len(points))
	for _, p := range points {
		if p.State == state {
			out = append(out, p)
		}
	}
	return out
}

// StateSummary 每个州在给定数据点上的均值，用于地图着色
func StateSummary(points []StatePoint) []StateValue {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, p := range points {
		sums[p.State] += p.Value
		counts[p.State]++
	}

	out := make([]StateValue, 0, len(sums))
	for state, sum := range sums {
		out = append(out, StateValue{State: state, Value: sum / float64(counts[state])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

// States 数据中出现的州，去重排序
func States(df dataframe.DataFrame, stateCol string) []string {
	if !utils.HasColumn(df, stateCol) {
		return nil
	}
	return uniqueSorted(df.Col(stateCol).Records())
}

// CitiesInState 某州的城市名，去重排序
func CitiesInState(df dataframe.DataFrame, stateCol, regionCol, state string) []string {
	if !utils.HasColumn(df, stateCol) || !utils.HasColumn(df, regionCol) {
		return nil
	}
	states := df.Col(stateCol).Records()
	regions := df.Col(regionCol).Records()

	var cities []string
	for i, s := range states {
		if s == state {
			cities = append(cities, regions[i])
		}
	}
	return uniqueSorted(cities)
}

// SelectCities 去重后最多保留前MaxCompareCities个城市，超出时truncated为true
func SelectCities(names []string) (selected []string, truncated bool) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}
	if len(selected) > MaxCompareCities {
		return selected[:MaxCompareCities], true
	}
	return selected, false
}

// RowsWhere 保留列值在values中的行；values为空时返回原表
func RowsWhere(df dataframe.DataFrame, col string, values ...string) (dataframe.DataFrame, error) {
	if len(values) == 0 {
		return df, nil
	}
	if !utils.HasColumn(df, col) {
		return keepRows(df, nil)
	}

	var keep []int
	for i, v := range df.Col(col).Records() {
		if utils.Contains(values, v) {
			keep = append(keep, i)
		}
	}
	return keepRows(df, keep)
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || v == "NaN" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func nanMean(values []float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
