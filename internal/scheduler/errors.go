package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigurationMissing 表示客户还没有设置排期配置，调用方应当引导用户去配置，而不是当作错误展示
	ErrConfigurationMissing = errors.New("scheduler: configuration missing")
	// ErrNoCandidateSlots 表示配置存在，但在检索范围内找不到任何可用时段
	ErrNoCandidateSlots = errors.New("scheduler: no candidate slots")
	ErrInvalidConfig    = errors.New("scheduler: invalid configuration")
	ErrInvalidRequest   = errors.New("scheduler: invalid request")
	ErrAuthRequired     = errors.New("scheduler: auth required")
	ErrPostNotFound     = errors.New("scheduler: post not found")
	ErrNotScheduled     = errors.New("scheduler: post is not scheduled")
	ErrAlreadyPosted    = errors.New("scheduler: post already posted")
)

type Step string

const (
	StepLoadPost    Step = "load_post"
	StepProbe       Step = "probe"
	StepDeleteEntry Step = "delete_entry"
	StepPutEntry    Step = "put_entry"
	StepUpdatePost  Step = "update_post"
)

// StepError 记录排期流程中失败的步骤，以及失败前已经完成的步骤
type StepError struct {
	Step      Step
	PostID    string
	Shard     string
	Completed []Step
	Err       error
}

func (e *StepError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scheduler: step %s failed for post %s", e.Step, e.PostID)
	if e.Shard != "" {
		fmt.Fprintf(&sb, " (shard %s)", e.Shard)
	}
	if len(e.Completed) > 0 {
		completed := make([]string, len(e.Completed))
		for i, s := range e.Completed {
			completed[i] = string(s)
		}
		fmt.Fprintf(&sb, " after [%s]", strings.Join(completed, ", "))
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// LeavesDanglingEntry 表示分片已经写入新条目，但帖子记录没有更新成功
func (e *StepError) LeavesDanglingEntry() bool {
	if e.Step != StepUpdatePost {
		return false
	}
	for _, s := range e.Completed {
		if s == StepPutEntry {
			return true
		}
	}
	return false
}
