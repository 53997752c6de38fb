// reader.go
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"RentalInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
)

// naToken gota中表示缺失值的字符串
const naToken = "NaN"

var (
	ErrInputNotFound = errors.New("输入文件不存在")
	ErrEmptyInput    = errors.New("输入文件没有表头")
	ErrSheetNotFound = errors.New("工作表不存在")
	ErrTooManyFields = errors.New("数据行字段数多于表头")
)

// 读入时视为缺失值的单元格内容(去除首尾空白后比较)
var naValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "<nil>", "#N/A"}

// ReadTable 按扩展名读取原始数据表，.xlsx用tealeg/xlsx，其余按csv处理
// 所有列均读为字符串列，缺失值标记为NA，类型转换由清洗流程负责
func ReadTable(filePath, sheetName string) (dataframe.DataFrame, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrInputNotFound, filePath)
		}
		return dataframe.DataFrame{}, fmt.Errorf("无法访问输入文件: %w", err)
	}

	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		return ReadXLSX(filePath, sheetName)
	}
	return ReadCSV(filePath)
}

// ReadCSV 读取csv文件
func ReadCSV(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("打开csv失败: %w", err)
	}
	defer f.Close()

	return ParseCSV(f)
}

// ParseCSV 从reader解析csv，第一行为表头
func ParseCSV(r io.Reader) (dataframe.DataFrame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // 短行按表头补齐，长行在recordsToDataFrame中报错

	records, err := reader.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析csv失败: %w", err)
	}
	return recordsToDataFrame(records)
}

// ReadXLSX 读取xlsx文件，sheetName为空时读取第一个工作表
func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}

	return sheetToDataFrame(xlFile, sheetName)
}

// ParseXLSX 从内存中的xlsx内容解析，用于邮件附件
func ParseXLSX(data []byte, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析xlsx失败: %w", err)
	}
	return sheetToDataFrame(xlFile, sheetName)
}

func sheetToDataFrame(xlFile *xlsx.File, sheetName string) (dataframe.DataFrame, error) {
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: excel文件中没有工作表", ErrSheetNotFound)
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame(第一行是标题行)
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		record := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			record[i] = cell.String()
		}
		// 带格式的空单元格会出现在表头范围之外，不算作字段
		if len(records) > 0 {
			for len(record) > len(records[0]) && strings.TrimSpace(record[len(record)-1]) == "" {
				record = record[:len(record)-1]
			}
		}
		records = append(records, record)
	}
	return recordsToDataFrame(records)
}

// recordsToDataFrame 表头+数据行转为字符串列组成的DataFrame
func recordsToDataFrame(records [][]string) (dataframe.DataFrame, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return dataframe.DataFrame{}, ErrEmptyInput
	}

	headers := normalizeHeaders(records[0])
	rows := records[1:]

	// 准备数据列
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, len(rows))
	}

	for r, row := range rows {
		if len(row) > len(headers) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: 第%d行有%d个字段，表头只有%d个",
				ErrTooManyFields, r+2, len(row), len(headers))
		}
		for i := range headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if isNA(value) {
				value = naToken
			}
			columns[i][r] = value
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

// normalizeHeaders 空表头按pandas的习惯命名为"Unnamed: i"
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		headers[i] = h
	}
	return headers
}

func isNA(value string) bool {
	return utils.Contains(naValues, strings.TrimSpace(value))
}
