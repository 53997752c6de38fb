// cleaner.go
package processor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"RentalInsight/src/config"
	"RentalInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// MaxMissingFraction 缺失比例超过该值的行被删除(严格大于)
const MaxMissingFraction = 0.80

// 清洗阶段名，按执行顺序排列
const (
	StageNormalizeColumns    = "normalize-columns"
	StageSelectColumns       = "select-columns"
	StageFilterMissing       = "filter-missing"
	StageInterpolate         = "interpolate"
	StageEdgeFill            = "edge-fill"
	StageDropMissingIdentity = "drop-missing-identity"
)

var ErrMissingColumn = errors.New("缺少标识列")

// Stage 清洗流程中的一个命名步骤
type Stage struct {
	Name  string
	Apply func(dataframe.DataFrame) (dataframe.DataFrame, error)
}

// Cleaner 按固定顺序执行清洗步骤，将原始宽表转换为无缺失的宽表
type Cleaner struct {
	dcfg   *config.DataConfig
	stages []Stage
}

func NewCleaner(dcfg *config.DataConfig) *Cleaner {
	if dcfg == nil {
		dcfg = config.DefaultDataConfig()
	}
	c := &Cleaner{dcfg: dcfg}
	c.stages = []Stage{
		{Name: StageNormalizeColumns, Apply: func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
			return DropIndexColumn(df, dcfg.IndexPlaceholder)
		}},
		{Name: StageSelectColumns, Apply: func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
			return SelectColumns(df, dcfg.IdentityColumns())
		}},
		{Name: StageFilterMissing, Apply: FilterMissing},
		{Name: StageInterpolate, Apply: Interpolate},
		{Name: StageEdgeFill, Apply: EdgeFill},
		{Name: StageDropMissingIdentity, Apply: func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
			return DropMissingIdentity(df, dcfg.RequiredColumns())
		}},
	}
	return c
}

// Stages 返回清洗步骤名，顺序即执行顺序
func (c *Cleaner) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Clean 执行全部清洗步骤
// 参数:
//
//	df: 原始数据表，所有列可以是字符串列
//
// 返回值:
//
//	清洗后的数据表、诊断报告；任何一步出错时立即返回
func (c *Cleaner) Clean(df dataframe.DataFrame) (dataframe.DataFrame, *Report, error) {
	report := &Report{Started: time.Now()}

	for _, stage := range c.stages {
		if stage.Name == StageFilterMissing {
			// 清洗前的统计以列筛选后的表为准
			report.Before = Snapshot(df)
		}

		t1 := time.Now()
		rowsIn := df.Nrow()
		out, err := stage.Apply(df)
		if err != nil {
			return dataframe.DataFrame{}, report, fmt.Errorf("%s: %w", stage.Name, err)
		}
		report.Stages = append(report.Stages, StageStat{
			Name:     stage.Name,
			RowsIn:   rowsIn,
			RowsOut:  out.Nrow(),
			Duration: time.Since(t1),
		})
		df = out
	}

	report.After = Snapshot(df)
	report.Elapsed = time.Since(report.Started)
	return df, report, nil
}

// DropIndexColumn 第一列名为占位符时删除该列
func DropIndexColumn(df dataframe.DataFrame, placeholder string) (dataframe.DataFrame, error) {
	names := df.Names()
	if len(names) == 0 || names[0] != placeholder {
		return df, nil
	}
	return fromColumns(columns(df)[1:])
}

// SelectColumns 保留标识列和以数字开头的日期列，标识列在前
// 日期列转为浮点列，无法解析的值记为NA
func SelectColumns(df dataframe.DataFrame, identity []string) (dataframe.DataFrame, error) {
	var missing []string
	for _, name := range identity {
		if !utils.HasColumn(df, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}

	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range identity {
		cols = append(cols, df.Col(name))
	}
	for _, name := range dateColumns(df) {
		if utils.Contains(identity, name) {
			continue
		}
		cols = append(cols, toFloat(df.Col(name)))
	}
	return fromColumns(cols)
}

// FilterMissing 删除日期列缺失比例超过MaxMissingFraction的行
func FilterMissing(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	rows := dateMatrix(df, dateColumns(df))

	keep := make([]int, 0, len(rows))
	for i, row := range rows {
		if missingFraction(row) <= MaxMissingFraction {
			keep = append(keep, i)
		}
	}
	return keepRows(df, keep)
}

// Interpolate 逐行对日期列做线性插值，不跨行
func Interpolate(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	return mapDateRows(df, interpolateRow)
}

// EdgeFill 逐行先前向填充再后向填充
// 全空行在FilterMissing之后不会出现，后向填充对其仍然生效
func EdgeFill(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	return mapDateRows(df, func(row []float64) {
		forwardFill(row)
		backwardFill(row)
	})
}

// DropMissingIdentity 删除必需标识列为空的行
func DropMissingIdentity(df dataframe.DataFrame, required []string) (dataframe.DataFrame, error) {
	nulls := make([]bool, df.Nrow())
	for _, name := range required {
		if !utils.HasColumn(df, name) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		col := df.Col(name)
		for i := range nulls {
			if isNull(col, i) {
				nulls[i] = true
			}
		}
	}

	keep := make([]int, 0, len(nulls))
	for i, null := range nulls {
		if !null {
			keep = append(keep, i)
		}
	}
	return keepRows(df, keep)
}

func mapDateRows(df dataframe.DataFrame, fn func([]float64)) (dataframe.DataFrame, error) {
	dates := dateColumns(df)
	if len(dates) == 0 || df.Nrow() == 0 {
		return df, nil
	}

	rows := dateMatrix(df, dates)
	for _, row := range rows {
		fn(row)
	}
	return withDateMatrix(df, dates, rows)
}

// NullDateCells 统计日期列中的缺失单元格
func NullDateCells(df dataframe.DataFrame) int {
	n := 0
	for _, row := range dateMatrix(df, dateColumns(df)) {
		for _, v := range row {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}
