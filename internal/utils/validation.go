package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday 解析英文星期名，忽略大小写，也接受三个字母的缩写
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if day, ok := weekdayNames[key]; ok {
		return day, nil
	}
	if len(key) == 3 {
		for name, day := range weekdayNames {
			if strings.HasPrefix(name, key) {
				return day, nil
			}
		}
	}
	return 0, fmt.Errorf("无法识别的星期 %q", s)
}

// ParseTimeOfDay 解析 "HH:MM" 格式的时间，返回规范化后的字符串以及小时和分钟
func ParseTimeOfDay(s string) (string, int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", 0, 0, fmt.Errorf("时间 %q 格式错误，应为 HH:MM", s)
	}
	return t.Format("15:04"), t.Hour(), t.Minute(), nil
}

// At 返回 date 所在日期在 loc 时区中 hour:minute 对应的时刻
func At(date time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// YearMonth 返回 t 在 loc 时区中的月分片键
func YearMonth(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// ParseYearMonth 解析 "YYYY-MM" 格式的分片键
func ParseYearMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("月份 %q 格式错误，应为 YYYY-MM", s)
	}
	return t, nil
}

// AddMonths 在分片键上加减月份
func AddMonths(yearMonth string, n int) (string, error) {
	t, err := ParseYearMonth(yearMonth)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, n, 0).Format("2006-01"), nil
}

// RegisterValidations 注册 timeofday 和 weekday 两个自定义校验标签
func RegisterValidations(validate *validator.Validate) error {
	if err := validate.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, _, _, err := ParseTimeOfDay(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}

	return validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := ParseWeekday(fl.Field().String())
		return err == nil
	})
}
