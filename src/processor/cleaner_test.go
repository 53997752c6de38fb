package processor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"RentalInsight/src/config"
	"RentalInsight/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) dataframe.DataFrame {
	t.Helper()
	df, err := file.ParseCSV(strings.NewReader(raw))
	require.NoError(t, err)
	return df
}

func clean(t *testing.T, raw string) (dataframe.DataFrame, *Report) {
	t.Helper()
	out, report, err := NewCleaner(nil).Clean(parse(t, raw))
	require.NoError(t, err)
	return out, report
}

// row 取出第i行的日期列数值
func row(df dataframe.DataFrame, i int) []float64 {
	m := dateMatrix(df, dateColumns(df))
	return m[i]
}

func TestCleanerStageOrder(t *testing.T) {
	assert.Equal(t, []string{
		StageNormalizeColumns,
		StageSelectColumns,
		StageFilterMissing,
		StageInterpolate,
		StageEdgeFill,
		StageDropMissingIdentity,
	}, NewCleaner(nil).Stages())
}

func TestCleanInterpolatesInteriorGaps(t *testing.T) {
	out, _ := clean(t, "RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03,2015-04\n"+
		"Austin,TX,Austin,Travis,100,,,130\n")

	require.Equal(t, 1, out.Nrow())
	assert.Equal(t, []float64{100, 110, 120, 130}, row(out, 0))
}

func TestCleanEdgeFill(t *testing.T) {
	out, _ := clean(t, "RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03,2015-04\n"+
		"Austin,TX,,,,,50,60\n"+
		"Dallas,TX,,,70,80,,\n"+
		"Houston,TX,,,,90,,\n")

	require.Equal(t, 3, out.Nrow())
	assert.Equal(t, []float64{50, 50, 50, 60}, row(out, 0))
	assert.Equal(t, []float64{70, 80, 80, 80}, row(out, 1))
	assert.Equal(t, []float64{90, 90, 90, 90}, row(out, 2), "只有一个观测值时整行取该值")
}

func TestCleanMissingThreshold(t *testing.T) {
	header := "RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03,2015-04,2015-05,2015-06,2015-07,2015-08,2015-09,2015-10\n"
	out, report := clean(t, header+
		"NinetyPercent,TX,,,100,,,,,,,,,\n"+
		"EightyPercent,TX,,,100,,,,,,,,,200\n"+
		"AllMissing,TX,,,,,,,,,,,,\n"+
		"Complete,TX,,,1,2,3,4,5,6,7,8,9,10\n")

	assert.Equal(t, []string{"EightyPercent", "Complete"}, out.Col("RegionName").Records())
	assert.Equal(t, 2, report.RemovedByMissing())
	assert.Equal(t, 0, report.RemovedByIdentity())

	// 恰好80%缺失保留并被插值
	assert.InDeltaSlice(t, []float64{100, 111.11111111111111, 122.22222222222223, 133.33333333333334,
		144.44444444444446, 155.55555555555557, 166.66666666666669, 177.7777777777778, 188.8888888888889, 200},
		row(out, 0), 1e-9)
}

func TestCleanDropsMissingIdentity(t *testing.T) {
	out, report := clean(t, "RegionName,State,Metro,CountyName,2015-01,2015-02\n"+
		",TX,Austin,Travis,1,2\n"+
		"Dallas,,Dallas,Dallas,1,2\n"+
		"Houston,TX,,,1,2\n")

	assert.Equal(t, []string{"Houston"}, out.Col("RegionName").Records())
	assert.Equal(t, 2, report.RemovedByIdentity())
	assert.Equal(t, 0, report.RemovedByMissing())

	// Metro/CountyName允许为空
	assert.True(t, out.Col("Metro").Elem(0).IsNA())
}

func TestCleanProjection(t *testing.T) {
	out, _ := clean(t, ",RegionID,RegionName,State,CountyName,Metro,SizeRank,2015-01,Notes,2015-02\n"+
		"0,1,Austin,TX,Travis,Austin,1,100,x,110\n")

	assert.Equal(t, []string{"RegionName", "State", "Metro", "CountyName", "2015-01", "2015-02"}, out.Names())
	for _, name := range out.Names()[4:] {
		assert.Equal(t, "float", string(out.Col(name).Type()))
	}
}

func TestCleanKeepsIndexColumnWhenNotFirst(t *testing.T) {
	df := parse(t, "RegionName,Unnamed: 0,State,Metro,CountyName,2015-01\nAustin,0,TX,,,1\n")
	out, err := DropIndexColumn(df, "Unnamed: 0")
	require.NoError(t, err)
	assert.Equal(t, df.Names(), out.Names())
}

func TestCleanUnparseableDateCell(t *testing.T) {
	out, _ := clean(t, "RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03\n"+
		"Austin,TX,,,100,n/a-ish,300\n")
	assert.Equal(t, []float64{100, 200, 300}, row(out, 0))
}

func TestCleanMissingIdentityColumn(t *testing.T) {
	_, _, err := NewCleaner(nil).Clean(parse(t, "RegionName,State,2015-01\nAustin,TX,1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), StageSelectColumns)
}

func TestCleanCustomColumns(t *testing.T) {
	dcfg := config.DefaultDataConfig()
	dcfg.Columns.Region = "City"
	dcfg.Columns.County = "County"

	out, _, err := NewCleaner(dcfg).Clean(parse(t, "City,State,Metro,County,2015-01\nAustin,TX,,,1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"City", "State", "Metro", "County", "2015-01"}, out.Names())
}

func TestCleanDegenerateInputs(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		rows  int
		names []string
	}{
		{
			name:  "no rows",
			raw:   "RegionName,State,Metro,CountyName,2015-01\n",
			rows:  0,
			names: []string{"RegionName", "State", "Metro", "CountyName", "2015-01"},
		},
		{
			name:  "no date columns",
			raw:   "RegionName,State,Metro,CountyName,SizeRank\nAustin,TX,,,1\n",
			rows:  1,
			names: []string{"RegionName", "State", "Metro", "CountyName"},
		},
		{
			name:  "every row dropped",
			raw:   "RegionName,State,Metro,CountyName,2015-01\nAustin,TX,,,\n",
			rows:  0,
			names: []string{"RegionName", "State", "Metro", "CountyName", "2015-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, report := clean(t, tt.raw)
			assert.Equal(t, tt.rows, out.Nrow())
			assert.Equal(t, tt.names, out.Names())
			assert.Equal(t, tt.rows, report.After.Rows)
		})
	}
}

func TestCleanGuarantees(t *testing.T) {
	out, _ := clean(t, ",RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03,2015-04,2015-05\n"+
		"0,Austin,TX,Austin,Travis,,1200,,,1300\n"+
		"1,Boston,MA,,,1500,,,,\n"+
		"2,,CA,,,1,2,3,4,5\n"+
		"3,Chicago,IL,,,,,,,900\n"+
		"4,Denver,CO,,,,,,,\n")

	assert.Zero(t, NullDateCells(out))
	for _, name := range []string{"RegionName", "State"} {
		for i := 0; i < out.Nrow(); i++ {
			assert.False(t, out.Col(name).Elem(i).IsNA())
		}
	}
	assert.Equal(t, []string{"Austin", "Boston", "Chicago"}, out.Col("RegionName").Records())
}

func TestCleanIdempotent(t *testing.T) {
	first, _ := clean(t, ",RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03,2015-04\n"+
		"0,Austin,TX,Austin,Travis,,1200.5,,1300\n"+
		"1,Boston,MA,,,1500,,,1600.25\n"+
		"2,Chicago,IL,Chicago,Cook,0.1,0.2,,0.7\n")

	path := filepath.Join(t.TempDir(), "cleaned.csv")
	require.NoError(t, file.WriteCSV(first, path))

	reread, err := file.ReadCSV(path)
	require.NoError(t, err)
	second, report, err := NewCleaner(nil).Clean(reread)
	require.NoError(t, err)

	assert.Equal(t, file.Records(first), file.Records(second))
	assert.Zero(t, report.RemovedByMissing())
	assert.Zero(t, report.RemovedByIdentity())
}

func TestReportCounts(t *testing.T) {
	_, report := clean(t, "RegionName,State,Metro,CountyName,2015-01,2015-02\n"+
		"Austin,TX,,,1,\n"+
		",TX,,,1,2\n")

	assert.Equal(t, TableStats{
		Rows: 2,
		Cols: 6,
		Nulls: []ColumnNulls{
			{"RegionName", 1}, {"State", 0}, {"Metro", 2}, {"CountyName", 2}, {"2015-01", 0}, {"2015-02", 1},
		},
	}, report.Before)
	assert.Equal(t, 1, report.After.Rows)
	assert.Equal(t, []ColumnNulls{
		{"RegionName", 0}, {"State", 0}, {"Metro", 1}, {"CountyName", 1}, {"2015-01", 0}, {"2015-02", 0},
	}, report.After.Nulls)
	assert.Len(t, report.Stages, 6)

	var buf strings.Builder
	report.Render(&buf)
	assert.Contains(t, buf.String(), "Initial dataset shape: (2, 6)")
	assert.Contains(t, buf.String(), "Final dataset shape: (1, 6)")
	assert.Contains(t, buf.String(), StageEdgeFill)
	assert.NotEmpty(t, report.Fields())
}
