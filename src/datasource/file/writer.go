package file

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// WriteCSV 将DataFrame整体写入csv(覆盖写，不带索引列)
// NA写为空单元格，浮点数用最短精确表示，重新读入后数值不变
func WriteCSV(df dataframe.DataFrame, filePath string) error {
	if err := ensureParent(filePath); err != nil {
		return err
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建csv失败: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(Records(df)); err != nil {
		f.Close()
		return fmt.Errorf("写入csv失败: %w", err)
	}
	return f.Close()
}

// Records 返回表头加数据行
func Records(df dataframe.DataFrame) [][]string {
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = df.Col(name)
	}

	records := make([][]string, 0, df.Nrow()+1)
	records = append(records, names)
	for r := 0; r < df.Nrow(); r++ {
		record := make([]string, len(cols))
		for c, col := range cols {
			record[c] = cellString(col, r)
		}
		records = append(records, record)
	}
	return records
}

func cellString(s series.Series, i int) string {
	e := s.Elem(i)
	if e.IsNA() {
		return ""
	}
	if s.Type() == series.Float {
		f := e.Float()
		if math.IsNaN(f) {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return e.String()
}

// SaveToExcel 将DataFrame保存为xlsx文件
func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	if err := ensureParent(filePath); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sheet1"

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
	}

	// 写入数据，NA留空
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < col.Len(); rowIdx++ {
			e := col.Elem(rowIdx)
			if e.IsNA() || (col.Type() == series.Float && math.IsNaN(e.Float())) {
				continue
			}
			var val interface{} = e.String()
			if col.Type() == series.Float {
				val = e.Float()
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return fmt.Errorf("写入单元格%s失败: %w", cell, err)
			}
		}
	}

	// 保存文件
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func ensureParent(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	return nil
}
