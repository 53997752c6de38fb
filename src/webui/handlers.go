package webui

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"RentalInsight/src/processor"
	"RentalInsight/src/utils"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// 日期选择器默认范围
var (
	DefaultStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultEnd   = time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)
)

// CompareWarning 城市数超过上限时返回的提示
const CompareWarning = "Maximum 3 cities can be compared. Showing first 3 selections."

type rangeQuery struct {
	Start string `query:"start" validate:"omitempty,datetoken"`
	End   string `query:"end" validate:"omitempty,datetoken"`
}

type pricesQuery struct {
	rangeQuery
	State string `query:"state" validate:"omitempty,len=2,alpha"`
}

type citiesQuery struct {
	State string `query:"state" validate:"required,len=2,alpha"`
}

type compareQuery struct {
	rangeQuery
	Cities []string `query:"city" validate:"dive,required,max=128"`
}

type dataQuery struct {
	State string `query:"state" validate:"omitempty,len=2,alpha"`
}

// queryDecoder 校验查询参数，错误信息使用query标签名
type queryDecoder struct {
	validate *validator.Validate
}

func newQueryDecoder() *queryDecoder {
	v := validator.New()
	v.RegisterValidation("datetoken", func(fl validator.FieldLevel) bool {
		_, err := utils.ParseDateToken(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("query")
	})
	return &queryDecoder{validate: v}
}

func (d *queryDecoder) check(q interface{}) error {
	err := d.validate.Struct(q)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid query: %s", strings.Join(msgs, "; "))
}

// dateRange 缺省时使用默认范围，两端顺序无关
func (q rangeQuery) dateRange() processor.DateRange {
	start, end := DefaultStart, DefaultEnd
	if t, err := utils.ParseDateToken(q.Start); err == nil {
		start = t
	}
	if t, err := utils.ParseDateToken(q.End); err == nil {
		end = t
	}
	return processor.NewDateRange(start, end)
}

func rangeFrom(r *http.Request) rangeQuery {
	q := r.URL.Query()
	return rangeQuery{Start: q.Get("start"), End: q.Get("end")}
}

type ComparePayload struct {
	Cities  []string               `json:"cities"`
	Warning string                 `json:"warning,omitempty"`
	Records []processor.LongRecord `json:"records"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.snapshot.CalculateSummary(s.columns.state))
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, processor.States(s.snapshot.GetDF(), s.columns.state))
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	q := citiesQuery{State: strings.ToUpper(r.URL.Query().Get("state"))}
	if err := s.queries.check(q); err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}
	cities := processor.CitiesInState(s.snapshot.GetDF(), s.columns.state, s.columns.region, q.State)
	if cities == nil {
		cities = []string{}
	}
	render.JSON(w, r, cities)
}

// handlePrices 各州月均价；state为已知州代码时只返回该州
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	q := pricesQuery{rangeQuery: rangeFrom(r), State: strings.ToUpper(r.URL.Query().Get("state"))}
	if err := s.queries.check(q); err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	points := processor.StateMeans(s.snapshot.GetDF(), s.columns.state)
	points = processor.FilterByDate(points, q.dateRange())
	if utils.Contains(processor.USStates, q.State) {
		points = processor.FilterState(points, q.State)
	}
	render.JSON(w, r, points)
}

// handleMap 时间范围内各州均价，地图着色用
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := rangeFrom(r)
	if err := s.queries.check(q); err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	points := processor.FilterByDate(processor.StateMeans(s.snapshot.GetDF(), s.columns.state), q.dateRange())
	render.JSON(w, r, processor.StateSummary(points))
}

// handleCompare 最多3个城市的月度价格，超出时截断并返回警告
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := compareQuery{rangeQuery: rangeFrom(r), Cities: r.URL.Query()["city"]}
	if err := s.queries.check(q); err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	selected, truncated := processor.SelectCities(q.Cities)
	payload := ComparePayload{Cities: selected, Records: []processor.LongRecord{}}
	if selected == nil {
		payload.Cities = []string{}
	}
	if truncated {
		payload.Warning = CompareWarning
	}

	if len(selected) > 0 {
		df, err := processor.RowsWhere(s.snapshot.GetDF(), s.columns.region, selected...)
		if err != nil {
			render.Render(w, r, errInternal(err))
			return
		}
		records := processor.Melt(df, []string{s.columns.region, s.columns.state})
		payload.Records = processor.FilterByDate(records, q.dateRange())
	}
	render.JSON(w, r, payload)
}

// handleData 数据表视图；state为已知州代码时只返回该州的行
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := dataQuery{State: strings.ToUpper(r.URL.Query().Get("state"))}
	if err := s.queries.check(q); err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	df := s.snapshot.GetDF()
	if utils.Contains(processor.USStates, q.State) {
		var err error
		if df, err = processor.RowsWhere(df, s.columns.state, q.State); err != nil {
			render.Render(w, r, errInternal(err))
			return
		}
	}

	rows := df.Maps()
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	render.JSON(w, r, rows)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	// 设置响应头
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	// 创建日志订阅通道，连接断开时取消订阅
	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			// 刷新响应缓冲区，确保消息立即发送到客户端
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
