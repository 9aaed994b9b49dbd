package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
	"github.com/tidwall/gjson"
)

type Schema string

const (
	SchemaLegacy  Schema = "legacy"
	SchemaCurrent Schema = "current"
)

// Allowance 是某个 (weekday, time) 时段的使用权限，IsGeneric 为 true 时对所有 profile 开放
type Allowance struct {
	IsGeneric bool                `json:"isGeneric"`
	Profiles  []domain.ProfileRef `json:"profiles"`
}

func (a Allowance) Permits(profileID string) bool {
	if a.IsGeneric {
		return true
	}
	return slices.ContainsFunc(a.Profiles, func(p domain.ProfileRef) bool {
		return p.ProfileID == profileID
	})
}

func (a Allowance) ProfileNames() []string {
	names := make([]string, 0, len(a.Profiles))
	for _, p := range a.Profiles {
		names = append(names, p.ProfileName)
	}
	return names
}

// NormalizedConfig 是两种配置格式统一后的查询接口
type NormalizedConfig struct {
	Schema Schema
	slots  map[time.Weekday]map[string]Allowance
}

func newNormalizedConfig(schema Schema) *NormalizedConfig {
	return &NormalizedConfig{
		Schema: schema,
		slots:  make(map[time.Weekday]map[string]Allowance),
	}
}

func (c *NormalizedConfig) add(day time.Weekday, timeOfDay string, allowance Allowance) {
	if _, exists := c.slots[day]; !exists {
		c.slots[day] = make(map[string]Allowance)
	}

	existing, exists := c.slots[day][timeOfDay]
	if !exists {
		c.slots[day][timeOfDay] = allowance
		return
	}

	// 同一时段出现多次（例如 "Monday" 和 "mon" 同时存在）时合并允许列表，任一为通用则整体为通用
	if existing.IsGeneric || allowance.IsGeneric {
		c.slots[day][timeOfDay] = Allowance{IsGeneric: true, Profiles: []domain.ProfileRef{}}
		return
	}
	for _, p := range allowance.Profiles {
		if !existing.Permits(p.ProfileID) {
			existing.Profiles = append(existing.Profiles, p)
		}
	}
	c.slots[day][timeOfDay] = existing
}

// AllowedProfiles 返回时段的权限，第二个返回值表示该时段是否被配置
func (c *NormalizedConfig) AllowedProfiles(day time.Weekday, timeOfDay string) (Allowance, bool) {
	allowance, ok := c.slots[day][timeOfDay]
	return allowance, ok
}

// TimesOn 返回某一天配置的所有时间点，按时间升序排列
func (c *NormalizedConfig) TimesOn(day time.Weekday) []string {
	times := make([]string, 0, len(c.slots[day]))
	for t := range c.slots[day] {
		times = append(times, t)
	}
	slices.Sort(times)
	return times
}

func (c *NormalizedConfig) IsEmpty() bool {
	for _, times := range c.slots {
		if len(times) > 0 {
			return false
		}
	}
	return true
}

// View 返回便于序列化的视图：weekday 名 -> 时间 -> 权限
func (c *NormalizedConfig) View() map[string]map[string]Allowance {
	view := make(map[string]map[string]Allowance, len(c.slots))
	for day, times := range c.slots {
		if len(times) == 0 {
			continue
		}
		view[day.String()] = make(map[string]Allowance, len(times))
		for t, allowance := range times {
			view[day.String()][t] = allowance
		}
	}
	return view
}

// NormalizeConfig 根据 timeslotsData 字段是否存在来判断配置格式，并统一成 NormalizedConfig
func NormalizeConfig(document []byte) (*NormalizedConfig, error) {
	if len(document) == 0 {
		return nil, ErrConfigurationMissing
	}
	if !gjson.ValidBytes(document) {
		return nil, fmt.Errorf("%w: document is not valid JSON", ErrInvalidConfig)
	}

	switch {
	case gjson.GetBytes(document, "timeslotsData").Exists():
		var current domain.CurrentScheduleConfig
		if err := json.Unmarshal(document, &current); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return normalizeCurrent(&current)
	case gjson.GetBytes(document, "activeDays").Exists(), gjson.GetBytes(document, "predefinedTimeSlots").Exists():
		var legacy domain.LegacyScheduleConfig
		if err := json.Unmarshal(document, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return normalizeLegacy(&legacy)
	default:
		return nil, ErrConfigurationMissing
	}
}

func normalizeLegacy(legacy *domain.LegacyScheduleConfig) (*NormalizedConfig, error) {
	cfg := newNormalizedConfig(SchemaLegacy)

	times := make([]string, 0, len(legacy.PredefinedTimeSlots))
	for _, slot := range legacy.PredefinedTimeSlots {
		t, _, _, err := utils.ParseTimeOfDay(slot)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		times = append(times, t)
	}

	for _, dayName := range legacy.ActiveDays {
		day, err := utils.ParseWeekday(dayName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, t := range times {
			cfg.add(day, t, Allowance{IsGeneric: true, Profiles: []domain.ProfileRef{}})
		}
	}

	return cfg, nil
}

func normalizeCurrent(current *domain.CurrentScheduleConfig) (*NormalizedConfig, error) {
	cfg := newNormalizedConfig(SchemaCurrent)

	for dayName, times := range current.TimeslotsData {
		day, err := utils.ParseWeekday(dayName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for slot, profiles := range times {
			t, _, _, err := utils.ParseTimeOfDay(slot)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			if len(profiles) == 0 {
				cfg.add(day, t, Allowance{IsGeneric: true, Profiles: []domain.ProfileRef{}})
				continue
			}
			for _, p := range profiles {
				if p.ProfileID == "" {
					return nil, fmt.Errorf("%w: %s %s has a profile without id", ErrInvalidConfig, dayName, slot)
				}
			}
			cfg.add(day, t, Allowance{IsGeneric: false, Profiles: slices.Clone(profiles)})
		}
	}

	return cfg, nil
}

type ConfigResolver struct {
	source ConfigSource
}

func NewConfigResolver(source ConfigSource) *ConfigResolver {
	return &ConfigResolver{source: source}
}

// Resolve 读取客户的排期配置并统一格式，没有配置时返回 ErrConfigurationMissing
func (r *ConfigResolver) Resolve(ctx context.Context, clientID string) (*NormalizedConfig, error) {
	doc, err := r.source.GetScheduleConfigDocument(ctx, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigurationMissing
		}
		return nil, fmt.Errorf("load schedule config for client %s: %w", clientID, err)
	}

	return NormalizeConfig(doc.Document)
}
