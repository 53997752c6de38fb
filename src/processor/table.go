package processor

import (
	"fmt"
	"math"
	"strconv"

	"RentalInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// dateColumns 返回按原顺序排列的日期列名
func dateColumns(df dataframe.DataFrame) []string {
	var cols []string
	for _, name := range df.Names() {
		if utils.IsDateColumn(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// floatSeries 由[]float64构建浮点列，NaN记为NA
func floatSeries(values []float64, name string) series.Series {
	records := make([]string, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			records[i] = "NaN"
			continue
		}
		records[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return series.New(records, series.Float, name)
}

// toFloat 任意类型列转为浮点列，无法解析的单元格为NA
func toFloat(s series.Series) series.Series {
	if s.Type() == series.Float {
		return s
	}
	return floatSeries(s.Float(), s.Name)
}

// fromColumns 用给定列重新组装DataFrame
func fromColumns(cols []series.Series) (dataframe.DataFrame, error) {
	df := dataframe.New(cols...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("组装dataframe失败: %w", df.Err)
	}
	return df, nil
}

// columns 依次取出所有列
func columns(df dataframe.DataFrame) []series.Series {
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = df.Col(name)
	}
	return cols
}

// keepRows 按行号保留行；结果为空时保留列结构
func keepRows(df dataframe.DataFrame, idx []int) (dataframe.DataFrame, error) {
	if len(idx) == df.Nrow() {
		return df, nil
	}

	cols := columns(df)
	for i, col := range cols {
		if len(idx) == 0 {
			cols[i] = series.New([]string{}, col.Type(), col.Name)
			continue
		}
		cols[i] = col.Subset(idx)
	}
	return fromColumns(cols)
}

// dateMatrix 取出日期列，按行组织
func dateMatrix(df dataframe.DataFrame, dates []string) [][]float64 {
	rows := make([][]float64, df.Nrow())
	for r := range rows {
		rows[r] = make([]float64, len(dates))
	}
	for c, name := range dates {
		for r, v := range df.Col(name).Float() {
			rows[r][c] = v
		}
	}
	return rows
}

// withDateMatrix 用按行组织的数值替换日期列
func withDateMatrix(df dataframe.DataFrame, dates []string, rows [][]float64) (dataframe.DataFrame, error) {
	if len(dates) == 0 {
		return df, nil
	}

	replace := make(map[string][]float64, len(dates))
	for c, name := range dates {
		values := make([]float64, len(rows))
		for r := range rows {
			values[r] = rows[r][c]
		}
		replace[name] = values
	}

	cols := columns(df)
	for i, col := range cols {
		if values, ok := replace[col.Name]; ok {
			cols[i] = floatSeries(values, col.Name)
		}
	}
	return fromColumns(cols)
}

// NullCounts 统计每列的缺失值个数，顺序与列顺序一致
func NullCounts(df dataframe.DataFrame) []ColumnNulls {
	counts := make([]ColumnNulls, 0, df.Ncol())
	for _, col := range columns(df) {
		n := 0
		for i := 0; i < col.Len(); i++ {
			if isNull(col, i) {
				n++
			}
		}
		counts = append(counts, ColumnNulls{Column: col.Name, Nulls: n})
	}
	return counts
}

func isNull(s series.Series, i int) bool {
	e := s.Elem(i)
	if e.IsNA() {
		return true
	}
	return s.Type() == series.Float && math.IsNaN(e.Float())
}
