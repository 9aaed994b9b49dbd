package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/config"
	"github.com/escribia-dev/post-scheduler/backend/internal/notify"
	"github.com/escribia-dev/post-scheduler/backend/internal/repository"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库
	 **********************************************/
	dbpool, err := repository.Open(cfg)
	if err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * 连接 rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法建立通道", "error", err)
		return
	}
	defer ch.Close()

	if _, err := notify.DeclareQueue(ch, cfg.Notification.Queue); err != nil {
		logger.Error("无法声明队列", "error", err)
		return
	}

	publisher := notify.NewPublisher(ch, cfg.Notification.Queue, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
	reconciler := scheduler.NewReconciler(repo, repo)

	/**********************************************
	 * 定时对账
	 **********************************************/
	c := cron.New(cron.WithLogger(cron.DefaultLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Reconcile.Cron, func() {
		reconcileAll(repo, reconciler, publisher)
	}); err != nil {
		logger.Error("无法解析对账周期", "cron", cfg.Reconcile.Cron, "error", err)
		return
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	logger.Info("对账任务已启动", "cron", cfg.Reconcile.Cron)
	c.Start()

	<-quit
	logger.Info("正在停止对账任务...")
	<-c.Stop().Done()
	logger.Info("对账任务已停止")
}

// reconcileAll 逐个客户查找孤儿条目，有问题时通知该代理机构的管理员
func reconcileAll(repo *repository.Repository, reconciler *scheduler.Reconciler, notifier notify.Notifier) {
	ctx := context.Background()

	clients, err := repo.GetAllClients(ctx)
	if err != nil {
		slog.Error("无法获取客户列表", "error", err)
		return
	}

	total := 0
	for _, client := range clients {
		orphans, err := reconciler.FindOrphans(ctx, client.ID)
		if err != nil {
			slog.Error("对账失败", "client", client.ID, "error", err)
			continue
		}
		if len(orphans) == 0 {
			continue
		}
		total += len(orphans)

		for _, o := range orphans {
			slog.Warn("发现孤儿条目",
				"client", o.ClientID,
				"shard", o.Shard,
				"post", o.PostID,
				"kind", o.Kind,
				"postStatus", o.PostStatus,
			)
		}

		admins, err := repo.GetAgencyAdmins(ctx, client.AgencyID)
		if err != nil {
			slog.Error("无法获取管理员", "agency", client.AgencyID, "error", err)
			continue
		}

		msg := fmt.Sprintf("客户 %s 的排期索引中有 %d 个条目与帖子记录不一致 (%s)", client.Name, len(orphans), scheduler.Summarize(orphans))
		for _, admin := range admins {
			notifier.Notify(ctx, notify.Failure(admin, "排期对账", msg))
		}
	}

	slog.Info("对账完成", "clients", len(clients), "orphans", total)
}
