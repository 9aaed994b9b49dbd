package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/config"
	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/repository"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	"github.com/escribia-dev/post-scheduler/backend/internal/seed"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"

)

func main() {
	var op int
	var n int
	var clientID string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机用户, 2: 导入客户和排期配置, 3: 为客户的帖子随机排期)")
	flag.IntVar(&n, "n", 5, "要插入的用户数量或要排期的帖子数量")
	flag.StringVar(&clientID, "client", "", "要排期的客户 ID")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := repository.Open(cfg)
	if err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg, dbpool)

	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			slog.Error("请输入合法的用户数量")
			return
		}

		cnt := 0
		for i := 0; i < n; i++ {
			user, err := utils.GenerateRandomUser(cfg.Seed.User.Password, cfg.Email.UserDomain, cfg.InitialAdmin.AgencyID)
			if err != nil {
				slog.Error("无法生成随机用户", slog.String("error", err.Error()))
				continue
			}

			if err := repo.CreateUser(context.Background(), user); err != nil {
				slog.Error("无法插入用户", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入用户成功", slog.Int("count", cnt))
	case 2:
		fixture, err := seed.Load(cfg.Seed.FixturePath)
		if err != nil {
			slog.Error("无法读取种子数据", slog.String("path", cfg.Seed.FixturePath), slog.String("error", err.Error()))
			return
		}

		posts, err := seed.Apply(context.Background(), repo, fixture)
		if err != nil {
			slog.Error("导入种子数据失败", slog.Int("posts", len(posts)), slog.String("error", err.Error()))
			return
		}

		slog.Info("导入种子数据成功", slog.Int("clients", len(fixture.Clients)), slog.Int("posts", len(posts)))
	case 3:
		if clientID == "" || n <= 0 {
			slog.Error("请指定客户 ID 和合法的帖子数量")
			return
		}
		scheduleRandomPosts(cfg, repo, clientID, n)
	default:
		slog.Error("指定的操作非法")
	}
}

// scheduleRandomPosts 依次为未排期的帖子选择下一个可用时段，并走完整的排期流程
func scheduleRandomPosts(cfg *config.Config, repo *repository.Repository, clientID string, n int) {
	ctx := context.Background()
	loc := cfg.Location()

	rc, err := scheduler.NewConfigResolver(repo).Resolve(ctx, clientID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrConfigurationMissing):
			slog.Error("客户尚未设置排期时段", slog.String("client", clientID))
		default:
			slog.Error("无法读取排期配置", slog.String("error", err.Error()))
		}
		return
	}

	posts, err := repo.GetPostsByClient(ctx, clientID)
	if err != nil {
		slog.Error("无法获取帖子", slog.String("error", err.Error()))
		return
	}

	search := scheduler.NewSlotSearchEngine(repo, loc, time.Now)
	coordinator := scheduler.NewCoordinator(repo, repo,
		scheduler.WithLocation(loc),
		scheduler.WithProbeMonths(cfg.Scheduling.ProbeMonths),
	)

	cnt := 0
	for _, post := range posts {
		if cnt >= n {
			break
		}
		if post.Status == domain.PostStatusScheduled || post.Status == domain.PostStatusPosted {
			continue
		}

		candidates, err := search.FindNextSlots(ctx, clientID, post.ProfileID, rc, scheduler.SearchOptions{
			Count:       1,
			HorizonDays: cfg.Scheduling.HorizonDays,
		})
		if err != nil {
			if errors.Is(err, scheduler.ErrNoCandidateSlots) {
				slog.Warn("没有可用时段", slog.String("post", post.ID), slog.String("profile", post.ProfileID))
				continue
			}
			slog.Error("检索时段失败", slog.String("error", err.Error()))
			return
		}

		if _, err := coordinator.Schedule(ctx, scheduler.ScheduleRequest{
			ActorID:     "seed",
			ClientID:    clientID,
			PostID:      post.ID,
			ScheduledAt: candidates[0].ScheduledAt,
		}); err != nil {
			slog.Error("排期失败", slog.String("post", post.ID), slog.String("error", err.Error()))
			continue
		}

		cnt++
	}

	slog.Info("随机排期完成", slog.String("client", clientID), slog.Int("count", cnt))
}
