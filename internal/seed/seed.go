// Package seed 从 YAML 文件读取客户、profile 和排期配置，写入开发环境的数据库
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
	"gopkg.in/yaml.v3"
)

type Fixture struct {
	Clients []ClientFixture `yaml:"clients"`
}

// ClientFixture 描述一个客户，Legacy 和 Current 只能设置一个
type ClientFixture struct {
	ID       string                        `yaml:"id"`
	Name     string                        `yaml:"name"`
	AgencyID int64                         `yaml:"agencyId"`
	Profiles []domain.ProfileRef           `yaml:"profiles"`
	Legacy   *domain.LegacyScheduleConfig  `yaml:"legacy"`
	Current  *domain.CurrentScheduleConfig `yaml:"current"`
	Posts    int                           `yaml:"posts"`
}

var errNoClients = errors.New("seed: fixture has no clients")

func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixture, error) {
	f := &Fixture{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(f.Clients) == 0 {
		return nil, errNoClients
	}

	seen := make(map[string]struct{}, len(f.Clients))
	for i, c := range f.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("seed: client #%d has no id", i+1)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("seed: duplicate client %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		if (c.Legacy == nil) == (c.Current == nil) {
			return nil, fmt.Errorf("seed: client %q must set exactly one of legacy and current", c.ID)
		}
		if c.Posts > 0 && len(c.Profiles) == 0 {
			return nil, fmt.Errorf("seed: client %q needs profiles to generate posts", c.ID)
		}
		if c.AgencyID == 0 {
			f.Clients[i].AgencyID = 1
		}
		if f.Clients[i].Name == "" {
			f.Clients[i].Name = c.ID
		}
	}

	return f, nil
}

// Document 返回要保存的排期配置文档
func (c *ClientFixture) Document() ([]byte, error) {
	if c.Current != nil {
		return json.Marshal(c.Current)
	}
	return json.Marshal(c.Legacy)
}

type Store interface {
	CreateClient(ctx context.Context, client *domain.Client) error
	PutScheduleConfigDocument(ctx context.Context, doc *domain.ScheduleConfigDocument) error
	CreatePost(ctx context.Context, post *domain.Post) error
}

// Apply 写入所有客户、配置和随机帖子，返回写入的帖子
func Apply(ctx context.Context, store Store, f *Fixture) ([]*domain.Post, error) {
	var posts []*domain.Post

	for i := range f.Clients {
		c := &f.Clients[i]

		if err := store.CreateClient(ctx, &domain.Client{ID: c.ID, AgencyID: c.AgencyID, Name: c.Name}); err != nil {
			return posts, fmt.Errorf("seed: create client %q: %w", c.ID, err)
		}

		doc, err := c.Document()
		if err != nil {
			return posts, err
		}
		if err := store.PutScheduleConfigDocument(ctx, &domain.ScheduleConfigDocument{ClientID: c.ID, Document: doc}); err != nil {
			return posts, fmt.Errorf("seed: save config of %q: %w", c.ID, err)
		}

		for j := 0; j < c.Posts; j++ {
			post := utils.GenerateRandomPost(c.ID, c.Profiles)
			if err := store.CreatePost(ctx, post); err != nil {
				return posts, fmt.Errorf("seed: create post for %q: %w", c.ID, err)
			}
			posts = append(posts, post)
		}

		slog.Info("已写入客户", "client", c.ID, "posts", c.Posts)
	}

	return posts, nil
}
