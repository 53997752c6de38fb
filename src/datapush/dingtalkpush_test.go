package datapush

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"RentalInsight/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *processor.Result {
	return &processor.Result{
		Input:  "/data/City_MedianRentalPrice_1Bedroom.csv",
		Output: "/data/cleaned_rental_data.csv",
		Report: &processor.Report{
			Before: processor.TableStats{Rows: 10, Cols: 6},
			After:  processor.TableStats{Rows: 7, Cols: 6},
			Stages: []processor.StageStat{
				{Name: processor.StageFilterMissing, RowsIn: 10, RowsOut: 8},
				{Name: processor.StageDropMissingIdentity, RowsIn: 8, RowsOut: 7},
			},
		},
	}
}

func TestDingTalkRobotNotify(t *testing.T) {
	var got struct {
		MsgType  string `json:"msgtype"`
		Markdown struct {
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"markdown"`
	}
	var query map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	robot := NewDingTalkRobot(srv.URL+"/robot/send?access_token=abc", "SECxyz")
	robot.now = func() time.Time { return time.UnixMilli(1700000000000) }

	require.NoError(t, robot.Notify(context.Background(), testResult()))

	assert.Equal(t, "markdown", got.MsgType)
	assert.Equal(t, "租金数据清洗完成", got.Markdown.Title)
	assert.Contains(t, got.Markdown.Text, "cleaned_rental_data.csv")
	assert.Contains(t, got.Markdown.Text, "缺失超过80%删除: 2 行")
	assert.Contains(t, got.Markdown.Text, "地区/州为空删除: 1 行")

	assert.Equal(t, []string{"abc"}, query["access_token"])
	assert.Equal(t, []string{"1700000000000"}, query["timestamp"])
	assert.Equal(t, []string{sign(1700000000000, "SECxyz")}, query["sign"])
}

func TestDingTalkRobotNoSecret(t *testing.T) {
	robot := NewDingTalkRobot("https://oapi.dingtalk.com/robot/send?access_token=abc", "")
	u, err := robot.signedURL()
	require.NoError(t, err)
	assert.Equal(t, "https://oapi.dingtalk.com/robot/send?access_token=abc", u)
}

func TestDingTalkRobotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
			return
		}
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	robot := NewDingTalkRobot(srv.URL, "")
	robot.interval = time.Millisecond

	require.NoError(t, robot.Notify(context.Background(), testResult()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	robot.times = 2
	atomic.StoreInt32(&calls, 0)
	err := robot.Notify(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign not match")
}

func TestSign(t *testing.T) {
	assert.Equal(t, sign(1, "a"), sign(1, "a"))
	assert.NotEqual(t, sign(1, "a"), sign(2, "a"))
}
