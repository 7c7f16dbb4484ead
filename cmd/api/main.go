package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ctcadmin/ctc-admin-api/api/swagger"
	"github.com/ctcadmin/ctc-admin-api/internal/handler"
	"github.com/ctcadmin/ctc-admin-api/internal/middleware"
	"github.com/ctcadmin/ctc-admin-api/internal/models"
	"github.com/ctcadmin/ctc-admin-api/internal/repository"
	"github.com/ctcadmin/ctc-admin-api/internal/service"
	"github.com/ctcadmin/ctc-admin-api/pkg/cache"
	"github.com/ctcadmin/ctc-admin-api/pkg/config"
	"github.com/ctcadmin/ctc-admin-api/pkg/database"
	"github.com/ctcadmin/ctc-admin-api/pkg/logger"
	corsmiddleware "github.com/ctcadmin/ctc-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ctcadmin/ctc-admin-api/pkg/middleware/requestid"
)

// @title CTC Admin API
// @version 1.0.0
// @description Enrollment lifecycle and seat allocation for the technical training center
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Redis is optional: the availability snapshot degrades to direct
	// reads when the cache is unreachable.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories.
	seatLedger := repository.NewSeatLedger(logr)
	courseRepo := repository.NewCourseRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	preRegRepo := repository.NewPreRegistrationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	priceRepo := repository.NewPriceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, seatLedger)
	certRepo := repository.NewCertificateRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, cacheRepo, cfg.Course.AvailabilityTTL, logr)
	preRegSvc := service.NewPreRegistrationService(preRegRepo, courseRepo, nil, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, preRegRepo, participantRepo, priceRepo, metricsSvc, cfg.Payment.DiscrepancyTolerance, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseSvc, metricsSvc, cfg.Enrollment.PassingGrade, nil, logr)
	certSvc := service.NewCertificateService(certRepo, enrollmentRepo, metricsSvc, cfg.Certificate.CodePrefix, cfg.Certificate.CodeAttempts, cfg.Enrollment.HonorGrade, nil, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	preRegHandler := handler.NewPreRegistrationHandler(preRegSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	certHandler := handler.NewCertificateHandler(certSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	// Certificate verification is public so printed codes can be checked
	// without credentials.
	api.GET("/certificates/verify/:code", certHandler.VerifyCode)

	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	admin := middleware.RequireRoles(models.RoleAdmin)
	graders := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)

	courses := auth.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.GET("/:id/availability", courseHandler.Availability)
		courses.PUT("/:id/deactivate", admin, middleware.Audit(userRepo, models.AuditActionCourseUpdate, "course"), courseHandler.Deactivate)
	}

	preRegs := auth.Group("/pre-registrations")
	{
		preRegs.GET("", preRegHandler.List)
		preRegs.GET("/:id", preRegHandler.Get)

		review := middleware.Audit(userRepo, models.AuditActionPreRegistrationReview, "pre_registration")
		preRegs.PUT("/:id/approve", staff, review, preRegHandler.Approve)
		preRegs.PUT("/:id/reject", staff, review, preRegHandler.Reject)
		preRegs.PUT("/:id/revert", staff, review, preRegHandler.Revert)
		preRegs.POST("/batch/approve", staff, review, preRegHandler.ApproveBatch)
		preRegs.POST("/batch/reject", staff, review, preRegHandler.RejectBatch)
	}

	payments := auth.Group("/payments")
	{
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("", staff, middleware.Audit(userRepo, models.AuditActionPaymentRecord, "payment"), paymentHandler.Record)
		payments.PUT("/:id", staff, middleware.Audit(userRepo, models.AuditActionPaymentEdit, "payment"), paymentHandler.Edit)
	}

	enrollments := auth.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)

		promote := middleware.Audit(userRepo, models.AuditActionEnrollmentPromote, "enrollment")
		enrollments.POST("/promote", staff, promote, enrollmentHandler.Promote)
		enrollments.POST("/batch/promote", staff, promote, enrollmentHandler.PromoteBatch)

		update := middleware.Audit(userRepo, models.AuditActionEnrollmentUpdate, "enrollment")
		enrollments.PUT("/:id/grade", graders, update, enrollmentHandler.SetFinalGrade)
		enrollments.PUT("/:id/withdraw", staff, update, enrollmentHandler.Withdraw)
		enrollments.PUT("/:id/reactivate", staff, update, enrollmentHandler.Reactivate)
	}

	certificates := auth.Group("/certificates")
	{
		issue := middleware.Audit(userRepo, models.AuditActionCertificateIssue, "certificate")
		certificates.POST("", staff, issue, certHandler.Issue)
		certificates.POST("/bulk", staff, issue, certHandler.IssueBulk)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
