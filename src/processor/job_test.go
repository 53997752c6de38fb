package processor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"RentalInsight/src/config"
	"RentalInsight/src/datasource/file"
	"RentalInsight/src/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type recordingNotifier struct {
	results []*Result
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, res *Result) error {
	n.results = append(n.results, res)
	return n.err
}

func newJobFixture(t *testing.T) (*config.Config, *storage.Logger) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.Input = filepath.Join(dir, "raw.csv")
	cfg.Output = filepath.Join(dir, "out", "cleaned.csv")
	cfg.ExportXLSX = filepath.Join(dir, "out", "cleaned.xlsx")

	raw := ",RegionName,State,Metro,CountyName,SizeRank,2015-01,2015-02,2015-03\n" +
		"0,Austin,TX,Austin,Travis,1,100,,300\n" +
		"1,Boston,MA,,,2,,,\n" +
		"2,,TX,,,3,1,2,3\n"
	require.NoError(t, os.WriteFile(cfg.Input, []byte(raw), 0644))

	logger, err := storage.NewLogger(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return cfg, logger
}

func TestJobRun(t *testing.T) {
	cfg, logger := newJobFixture(t)

	metrics := NewMetrics()
	snapshot := &DataFrameWrapper{}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	var out bytes.Buffer

	job := NewJob(cfg, config.DefaultDataConfig(), logger,
		WithMetrics(metrics),
		WithSnapshot(snapshot),
		WithNotifier(notifier),
		WithReportWriter(&out))

	res, err := job.Run(context.Background())
	require.NoError(t, err, "通知失败不影响清洗结果")

	assert.Equal(t, cfg.Output, res.Output)
	assert.Equal(t, cfg.ExportXLSX, res.ExportXLSX)
	assert.Equal(t, 1, res.Report.RemovedByMissing())
	assert.Equal(t, 1, res.Report.RemovedByIdentity())
	assert.Contains(t, out.String(), "Final dataset shape: (1, 7)")

	content, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, "RegionName,State,Metro,CountyName,2015-01,2015-02,2015-03\nAustin,TX,Austin,Travis,100,200,300\n", string(content))

	f, err := excelize.OpenFile(cfg.ExportXLSX)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.True(t, snapshot.Loaded())
	assert.Equal(t, 1, snapshot.GetDF().Nrow())
	assert.Len(t, notifier.results, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsOut))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsRemoved.WithLabelValues(StageFilterMissing)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsRemoved.WithLabelValues(StageDropMissingIdentity)))
}

func TestJobRunMissingInput(t *testing.T) {
	cfg, logger := newJobFixture(t)
	metrics := NewMetrics()
	job := NewJob(cfg, nil, logger, WithMetrics(metrics), WithReportWriter(&bytes.Buffer{}))

	_, err := job.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, file.ErrInputNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("failure")))

	_, err = os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(err), "读取失败时不写输出")
}

func TestJobRunCancelled(t *testing.T) {
	cfg, logger := newJobFixture(t)
	job := NewJob(cfg, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
