package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/paypertask/taskhub/internal/auth"
	"github.com/paypertask/taskhub/internal/cache"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/http/handlers"
	"github.com/paypertask/taskhub/internal/http/middlewares"
	"github.com/paypertask/taskhub/internal/observability"
	"github.com/paypertask/taskhub/internal/payments"
	"github.com/paypertask/taskhub/internal/queue/redisclient"
	"github.com/paypertask/taskhub/internal/repo/postgres"
)

type Deps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redisclient.Client // nil when REDIS_ADDR is unset
	Registry *prometheus.Registry
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	prom := observability.NewProm(deps.Registry)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1 MiB
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("taskhub-api"))
	r.Use(prom.GinHandleMiddleware())

	// wake lets mutating handlers nudge the notification worker right
	// after commit instead of waiting out its poll interval
	wake := func() {}
	var counterStore middlewares.CounterStore

	if deps.Redis != nil {
		redis := deps.Redis
		wake = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if err := redis.Wake(ctx); err != nil {
				deps.Log.Warn("worker wake failed", "err", err)
			}
		}
		counterStore = middlewares.NewRedisCounter(redis.Raw())
	}

	authLimiter := middlewares.NewRateLimiter(10, time.Minute, counterStore)
	apiLimiter := middlewares.NewRateLimiter(120, time.Minute, counterStore)

	// wire up repositories

	usersRepo := postgres.NewUsersRepo(deps.Pool, prom)
	jobsRepo := postgres.NewJobsRepo(deps.Pool, prom)
	tasksRepo := postgres.NewTasksRepo(deps.Pool, usersRepo, jobsRepo, prom)
	submissionsRepo := postgres.NewSubmissionsRepo(deps.Pool, usersRepo, jobsRepo, prom)
	withdrawalsRepo := postgres.NewWithdrawalsRepo(deps.Pool, usersRepo, jobsRepo, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(deps.Pool)

	jwtManager := auth.NewManager(deps.Cfg.JWTSecret, deps.Cfg.AccessTTL, deps.Cfg.RefreshTTL)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	openTasksCache := cache.New(5 * time.Second)

	// wire up handlers

	healthHandler := handlers.NewHealthHandler(deps.Pool)
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshRepo, deps.Cfg)
	usersHandler := handlers.NewUsersHandler(usersRepo)
	tasksHandler := handlers.NewTasksHandler(tasksRepo, openTasksCache, wake)
	submissionsHandler := handlers.NewSubmissionsHandler(submissionsRepo, wake)
	withdrawalsHandler := handlers.NewWithdrawalsHandler(withdrawalsRepo, wake)
	paymentsHandler := handlers.NewPaymentsHandler(payments.NewLogProvider(), usersRepo)

	// Routes

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	authGroup := r.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	api := r.Group("/")
	api.Use(authMw.RequireAuth())
	api.Use(apiLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))

	// identity
	api.GET("/users/role/:email", usersHandler.GetRole)
	api.GET("/users/coin/:email", usersHandler.GetCoins)

	// tasks: browsing is open to all signed-in users, funding is buyer-only
	api.GET("/tasks", tasksHandler.ListAvailableTasks)
	api.GET("/tasks/:id", tasksHandler.GetTaskById)

	buyer := api.Group("/")
	buyer.Use(authMw.RequireRole(user.RoleBuyer))
	{
		buyer.POST("/tasks", tasksHandler.CreateTask)
		buyer.GET("/my/tasks", tasksHandler.ListMyTasks)
		buyer.PUT("/tasks/:id", tasksHandler.UpdateTask)
		buyer.GET("/submissions/received", submissionsHandler.ListReceivedSubmissions)
		buyer.POST("/submissions/:id/approve", submissionsHandler.ApproveSubmission)
		buyer.POST("/submissions/:id/reject", submissionsHandler.RejectSubmission)
		buyer.GET("/payments/packs", paymentsHandler.ListPacks)
		buyer.POST("/payments/intent", paymentsHandler.CreateIntent)
		buyer.POST("/payments/confirm", paymentsHandler.ConfirmPurchase)
	}

	// task delete allows owner or admin; the repo enforces which
	api.DELETE("/tasks/:id", tasksHandler.DeleteTask)

	worker := api.Group("/")
	worker.Use(authMw.RequireRole(user.RoleWorker))
	{
		worker.POST("/tasks/:id/claim", submissionsHandler.ClaimTask)
		worker.GET("/my/submissions", submissionsHandler.ListMySubmissions)
		worker.POST("/withdrawals", withdrawalsHandler.RequestWithdrawal)
		worker.GET("/my/withdrawals", withdrawalsHandler.ListMyWithdrawals)
	}

	admin := api.Group("/admin")
	admin.Use(authMw.RequireRole(user.RoleAdmin))
	{
		admin.GET("/users", usersHandler.ListUsers)
		admin.DELETE("/users/:email", usersHandler.DeleteUser)
		admin.PATCH("/users/:email/role", usersHandler.UpdateUserRole)
		admin.GET("/stats", usersHandler.GetStats)
		admin.GET("/withdrawals", withdrawalsHandler.ListPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", withdrawalsHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", withdrawalsHandler.RejectWithdrawal)
	}

	return r
}
