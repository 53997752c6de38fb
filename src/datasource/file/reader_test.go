package file

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const rawCSV = `,RegionName,State,Metro,CountyName,SizeRank,2015-01,2015-02
0,Austin,TX,Austin,Travis County,1,1200,
1,,CA,,Los Angeles County,2,NA,1500
`

func TestParseCSV(t *testing.T) {
	df, err := ParseCSV(strings.NewReader(rawCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Unnamed: 0", "RegionName", "State", "Metro", "CountyName", "SizeRank", "2015-01", "2015-02"}, df.Names())
	assert.Equal(t, 2, df.Nrow())

	region := df.Col("RegionName")
	assert.Equal(t, series.String, region.Type())
	assert.False(t, region.Elem(0).IsNA())
	assert.True(t, region.Elem(1).IsNA(), "空单元格应为NA")
	assert.True(t, df.Col("2015-01").Elem(1).IsNA(), "NA字符串应为NA")
	assert.True(t, df.Col("2015-02").Elem(0).IsNA())
}

func TestParseCSVShortRows(t *testing.T) {
	df, err := ParseCSV(strings.NewReader("RegionName,State,2015-01\nAustin,TX\n"))
	require.NoError(t, err)
	assert.True(t, df.Col("2015-01").Elem(0).IsNA())
}

func TestParseCSVTooManyFields(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("RegionName,State,2015-01\nAustin,TX,1200\nDallas,TX,1300,extra\n"))
	assert.ErrorIs(t, err, ErrTooManyFields)
	assert.ErrorContains(t, err, "第3行")
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestReadTableMissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.csv"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputNotFound))
}

func TestReadTableXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"RegionName", "State", "2015-01"},
		{"Austin", "TX", 1200},
		{"Dallas", "TX", nil},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	df, err := ReadTable(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RegionName", "State", "2015-01"}, df.Names())
	assert.Equal(t, 2, df.Nrow())
	assert.Equal(t, "1200", df.Col("2015-01").Elem(0).String())
	assert.True(t, df.Col("2015-01").Elem(1).IsNA())

	_, err = ReadTable(path, "Missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"Austin", "Dallas"}, series.String, "RegionName"),
		series.New([]string{"Austin", "NaN"}, series.String, "Metro"),
		series.New([]float64{1200, 1212.5}, series.Float, "2015-01"),
		series.New([]float64{110, math.NaN()}, series.Float, "2015-02"),
	)

	path := filepath.Join(t.TempDir(), "out", "cleaned.csv")
	require.NoError(t, WriteCSV(df, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RegionName,Metro,2015-01,2015-02\nAustin,Austin,1200,110\nDallas,,1212.5,\n", string(content))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, Records(df), Records(back))
}

func TestSaveToExcel(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"Austin"}, series.String, "RegionName"),
		series.New([]float64{1200.5}, series.Float, "2015-01"),
	)
	path := filepath.Join(t.TempDir(), "cleaned.xlsx")
	require.NoError(t, SaveToExcel(df, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"RegionName", "2015-01"}, {"Austin", "1200.5"}}, rows)
}

func TestFileMonitorWatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "raw.csv")

	monitor, err := NewFileMonitor(target)
	require.NoError(t, err)
	defer monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- monitor.Watch(ctx, func(name string) {
			changed <- name
			cancel()
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("RegionName\n"), 0644))

	select {
	case name := <-changed:
		assert.Equal(t, target, name)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到文件变更通知")
	}
	assert.NoError(t, <-done)
}
