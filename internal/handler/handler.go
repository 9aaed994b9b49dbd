package handler

import (
	"sync"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/config"
	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/notify"
	"github.com/escribia-dev/post-scheduler/backend/internal/repository"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/redis/go-redis/v9"
)

type Handler struct {
	validate    *validator.Validate
	config      *config.Config
	repository  *repository.Repository
	translator  ut.Translator
	notifier    notify.Notifier
	locker      postLocker
	entries     shardEntriesReader
	now         func() time.Time

	loc         *time.Location
	resolver    *scheduler.ConfigResolver
	search      *scheduler.SlotSearchEngine
	coordinator *scheduler.Coordinator

	// 每个客户一份可见排期列表，在第一次访问时加载，闲置过久后丢弃
	trackersMu sync.Mutex
	trackers   map[string]*clientQueue

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, notifier notify.Notifier, rdb *redis.Client) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if err := utils.RegisterValidations(validate); err != nil {
		return nil, err
	}

	loc := cfg.Location()
	coordinator := scheduler.NewCoordinator(repo, repo,
		scheduler.WithLocation(loc),
		scheduler.WithProbeMonths(cfg.Scheduling.ProbeMonths),
	)

	locker := &redisLocker{
		client:  rdb,
		ttl:     cfg.Scheduling.LockTTL,
		timeout: time.Duration(cfg.Redis.OperationExpiration) * time.Second,
	}

	return &Handler{
		validate:    validate,
		config:      cfg,
		repository:  repo,
		translator:  trans,
		notifier:    notifier,
		locker:      locker,
		entries:     repo,
		now:         time.Now,

		loc:         loc,
		resolver:    scheduler.NewConfigResolver(repo),
		search:      scheduler.NewSlotSearchEngine(repo, loc, time.Now),
		coordinator: coordinator,

		trackers: make(map[string]*clientQueue),

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Use(h.myInfo)

		r.Route("/my-info", func(r chi.Router) {
			r.Get("/", h.GetMyInfo)
			r.Get("/clients", h.GetMyClients)
		})

		r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Post("/users", h.CreateUser)

		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.Use(h.client)

			r.Get("/schedule-config", h.GetScheduleConfig)
			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Put("/schedule-config", h.UpdateScheduleConfig)

			r.Get("/profiles/{profileID}/next-slots", h.GetNextSlots)

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", h.GetQueue)
				r.Post("/more", h.LoadMoreQueueMonths)
				r.Post("/previous", h.LoadPreviousQueueMonths)
				r.Post("/refresh", h.RefreshQueue)
			})

			r.Get("/calendar.ics", h.ExportCalendar)

			r.Route("/posts/{postID}/schedule", func(r chi.Router) {
				r.Post("/", h.SchedulePost)
				r.Patch("/", h.MovePost)
				r.Delete("/", h.CancelPost)
			})
		})
	})
}
