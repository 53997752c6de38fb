package processor

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// ColumnNulls 单列缺失值个数
type ColumnNulls struct {
	Column string `json:"column"`
	Nulls  int    `json:"nulls"`
}

// TableStats 数据表形状及各列缺失情况
type TableStats struct {
	Rows  int           `json:"rows"`
	Cols  int           `json:"cols"`
	Nulls []ColumnNulls `json:"nulls"`
}

// StageStat 单个清洗步骤的行数变化及耗时
type StageStat struct {
	Name     string        `json:"name"`
	RowsIn   int           `json:"rows_in"`
	RowsOut  int           `json:"rows_out"`
	Duration time.Duration `json:"duration"`
}

// Report 一次清洗的诊断信息，仅用于输出，不参与后续计算
type Report struct {
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
	Before  TableStats    `json:"before"`
	After   TableStats    `json:"after"`
	Stages  []StageStat   `json:"stages"`
}

func Snapshot(df dataframe.DataFrame) TableStats {
	return TableStats{
		Rows:  df.Nrow(),
		Cols:  df.Ncol(),
		Nulls: NullCounts(df),
	}
}

// Removed 返回指定步骤删除的行数
func (r *Report) Removed(stage string) int {
	for _, s := range r.Stages {
		if s.Name == stage {
			return s.RowsIn - s.RowsOut
		}
	}
	return 0
}

// RemovedByMissing 因缺失比例过高删除的行数
func (r *Report) RemovedByMissing() int { return r.Removed(StageFilterMissing) }

// RemovedByIdentity 因地区名或州为空删除的行数
func (r *Report) RemovedByIdentity() int { return r.Removed(StageDropMissingIdentity) }

// Render 以表格形式输出清洗前后的形状和缺失值统计
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "\nInitial dataset shape: (%d, %d)\n", r.Before.Rows, r.Before.Cols)
	fmt.Fprintf(w, "Final dataset shape: (%d, %d)\n", r.After.Rows, r.After.Cols)
	fmt.Fprintf(w, "Rows removed due to > 80%% missing values: %d\n", r.RemovedByMissing())
	fmt.Fprintf(w, "Rows removed due to missing region/state: %d\n\n", r.RemovedByIdentity())

	after := make(map[string]int, len(r.After.Nulls))
	for _, c := range r.After.Nulls {
		after[c.Column] = c.Nulls
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Column", "Missing Before", "Missing After"})
	for _, c := range r.Before.Nulls {
		afterCell := "-"
		if n, ok := after[c.Column]; ok {
			afterCell = strconv.Itoa(n)
		}
		table.Append([]string{c.Column, strconv.Itoa(c.Nulls), afterCell})
	}
	table.Render()

	stages := tablewriter.NewWriter(w)
	stages.SetHeader([]string{"Stage", "Rows In", "Rows Out", "Duration"})
	for _, s := range r.Stages {
		stages.Append([]string{s.Name, strconv.Itoa(s.RowsIn), strconv.Itoa(s.RowsOut), s.Duration.String()})
	}
	stages.Render()
}

// Fields 转为结构化日志字段
func (r *Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("rows_before", r.Before.Rows),
		zap.Int("cols_before", r.Before.Cols),
		zap.Int("rows_after", r.After.Rows),
		zap.Int("cols_after", r.After.Cols),
		zap.Int("removed_missing", r.RemovedByMissing()),
		zap.Int("removed_identity", r.RemovedByIdentity()),
		zap.Int("null_cells_before", totalNulls(r.Before.Nulls)),
		zap.Int("null_cells_after", totalNulls(r.After.Nulls)),
		zap.Duration("elapsed", r.Elapsed),
	}
}

func totalNulls(cols []ColumnNulls) int {
	n := 0
	for _, c := range cols {
		n += c.Nulls
	}
	return n
}
