// data.go
package processor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"RentalInsight/src/datasource/file"
	"RentalInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// DataFrameWrapper 封装DataFrame并提供线程安全访问
// 清洗完成后整体替换，读者拿到的始终是完整的一份快照
type DataFrameWrapper struct {
	df       dataframe.DataFrame // 存储DataFrame数据
	loadedAt time.Time
	mu       sync.RWMutex // 读写锁保证线程安全
}

// GetDF 获取当前DataFrame(线程安全)
func (d *DataFrameWrapper) GetDF() dataframe.DataFrame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.df
}

// SetDF 替换当前DataFrame(线程安全)
func (d *DataFrameWrapper) SetDF(df dataframe.DataFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.df = df
	d.loadedAt = time.Now()
}

// Loaded 是否已有可用数据
func (d *DataFrameWrapper) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.loadedAt.IsZero()
}

// Load 读取清洗结果并替换快照，日期列转为浮点列
func (d *DataFrameWrapper) Load(filePath string) error {
	df, err := file.ReadTable(filePath, "")
	if err != nil {
		return err
	}

	cols := columns(df)
	for i, col := range cols {
		if utils.IsDateColumn(col.Name) {
			cols[i] = toFloat(col)
		}
	}
	if df, err = fromColumns(cols); err != nil {
		return fmt.Errorf("加载%s失败: %w", filePath, err)
	}

	d.SetDF(df)
	return nil
}

// Summary 快照概况
type Summary struct {
	Regions   int       `json:"regions"`
	States    int       `json:"states"`
	Months    int       `json:"months"`
	FirstDate string    `json:"first_date,omitempty"`
	LastDate  string    `json:"last_date,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// CalculateSummary 计算地区数、州数和月份范围
func (d *DataFrameWrapper) CalculateSummary(stateCol string) Summary {
	d.mu.RLock()
	df, loadedAt := d.df, d.loadedAt
	d.mu.RUnlock()

	s := Summary{LoadedAt: loadedAt}
	if df.Ncol() == 0 {
		return s
	}

	s.Regions = df.Nrow()
	dates := dateColumns(df)
	s.Months = len(dates)
	if len(dates) > 0 {
		sorted := append([]string(nil), dates...)
		sort.Strings(sorted)
		s.FirstDate, s.LastDate = sorted[0], sorted[len(sorted)-1]
	}
	s.States = len(States(df, stateCol))
	return s
}
