package utils

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
)

// 日期列名支持的格式，Zillow数据为"2010-02"
var dateLayouts = []string{"2006-01", "2006-01-02", "2006/01", "2006/01/02"}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// IsDateColumn 列名以数字开头即视为日期列，不校验能否解析
func IsDateColumn(name string) bool {
	r, size := utf8.DecodeRuneInString(name)
	return size > 0 && unicode.IsDigit(r)
}

// ParseDateToken 把日期列名解析为当月第一天
func ParseDateToken(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %q", s)
}
