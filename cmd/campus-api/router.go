package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/handler"
	"github.com/noah-isme/campus-hub-api/internal/middleware"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/config"
	"github.com/noah-isme/campus-hub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-hub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-hub-api/pkg/middleware/requestid"
	timeoutmiddleware "github.com/noah-isme/campus-hub-api/pkg/middleware/timeout"
)

type routerDeps struct {
	auth    middleware.TokenValidator
	audit   middleware.AuditWriter
	metrics middleware.HTTPObserver

	authHandler   *handler.AuthHandler
	events        *handler.EventHandler
	registrations *handler.RegistrationHandler
	canteen       *handler.CanteenHandler
	canteenAdmin  *handler.CanteenAdminHandler
	stream        *handler.StreamHandler
	metricsH      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.metricsH.Health)
	r.GET("/ready", d.metricsH.Ready)
	r.GET("/metrics", d.metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(d.audit, logr, action, resource)
	}

	api := r.Group(cfg.APIPrefix)
	authn := middleware.JWT(d.auth)

	// Streams stay open for the life of the connection, so no request timeout.
	api.GET("/stream/:table", authn, d.stream.Stream)

	v1 := api.Group("")
	v1.Use(timeoutmiddleware.Middleware(cfg.HTTP.RequestTimeout))

	auth := v1.Group("/auth")
	auth.POST("/login", d.authHandler.Login)
	auth.POST("/refresh", d.authHandler.Refresh)
	auth.POST("/logout", authn, d.authHandler.Logout)
	auth.POST("/change-password", authn, d.authHandler.ChangePassword)
	auth.GET("/me", authn, d.authHandler.Me)

	secured := v1.Group("")
	secured.Use(authn)

	organizers := middleware.RequireRoles(models.RoleOrganizer, models.RoleAdmin)
	approvers := middleware.RequireRoles(models.RoleFaculty, models.RoleHOD, models.RoleAdmin)

	events := secured.Group("/events")
	events.POST("", organizers, d.events.Submit)
	events.GET("", d.events.List)
	events.GET("/mine", organizers, d.events.Mine)
	events.GET("/pending", approvers, d.events.Pending)
	events.GET("/:id", d.events.Get)
	events.GET("/:id/history", d.events.History)
	events.POST("/:id/approve", approvers, audit(models.AuditActionEventApprove, models.AuditResourceEvents), d.events.Approve)
	events.POST("/:id/reject", approvers, audit(models.AuditActionEventReject, models.AuditResourceEvents), d.events.Reject)
	events.POST("/:id/cancel", organizers, audit(models.AuditActionEventCancel, models.AuditResourceEvents), d.events.Cancel)
	events.POST("/:id/close-registration", organizers, d.events.CloseRegistration)
	events.POST("/:id/registrations", middleware.RequireRoles(models.RoleStudent, models.RoleOrganizer), d.registrations.Register)
	events.GET("/:id/registrations", organizers, d.registrations.ListForEvent)
	events.GET("/:id/registrations/export", organizers, d.registrations.Export)

	registrations := secured.Group("/registrations")
	registrations.GET("/mine", d.registrations.Mine)
	scanners := middleware.RequireRoles(models.RoleOrganizer, models.RoleFaculty, models.RoleAdmin)
	registrations.POST("/verify", scanners, d.registrations.Verify)
	registrations.POST("/check-in", scanners, d.registrations.CheckIn)

	canteen := secured.Group("/canteen")
	canteen.GET("/menu", d.canteen.Menu)
	canteen.GET("/slots", d.canteen.Slots)
	students := canteen.Group("/orders")
	students.Use(middleware.RequireRoles(models.RoleStudent))
	students.POST("", d.canteen.PlaceOrder)
	students.GET("/mine", d.canteen.MyOrders)
	students.GET("/:id/log", d.canteen.OrderLog)

	staff := canteen.Group("/admin")
	staff.Use(middleware.RequireRoles(models.RoleCanteenAdmin, models.RoleAdmin))
	staff.GET("/orders", d.canteenAdmin.Orders)
	staff.GET("/orders/export", d.canteenAdmin.ExportOrders)
	staff.GET("/orders/:id/log", d.canteen.OrderLog)
	staff.POST("/orders/:id/status", audit(models.AuditActionOrderStatus, models.AuditResourceOrders), d.canteenAdmin.UpdateStatus)
	staff.POST("/collect", audit(models.AuditActionOrderCollect, models.AuditResourceOrders), d.canteenAdmin.Collect)
	staff.GET("/stats", d.canteenAdmin.Stats)
	staff.GET("/demand", d.canteenAdmin.Demand)
	staff.GET("/distribution", d.canteenAdmin.Distribution)
	staff.GET("/dashboard", d.canteenAdmin.Dashboard)
	staff.GET("/menu", d.canteenAdmin.Menu)
	staff.POST("/menu", audit(models.AuditActionMenuCreate, models.AuditResourceMenuItems), d.canteenAdmin.CreateItem)
	staff.PUT("/menu/:id", audit(models.AuditActionMenuUpdate, models.AuditResourceMenuItems), d.canteenAdmin.UpdateItem)
	staff.POST("/menu/:id/availability", audit(models.AuditActionMenuAvailability, models.AuditResourceMenuItems), d.canteenAdmin.SetAvailability)
	staff.DELETE("/menu/:id", audit(models.AuditActionMenuDelete, models.AuditResourceMenuItems), d.canteenAdmin.DeleteItem)
	staff.GET("/slots", d.canteenAdmin.Slots)
	staff.POST("/slots", audit(models.AuditActionSlotCreate, models.AuditResourceTimeSlots), d.canteenAdmin.CreateSlot)
	staff.POST("/slots/:id/toggle", audit(models.AuditActionSlotToggle, models.AuditResourceTimeSlots), d.canteenAdmin.ToggleSlot)

	secured.GET("/admin/metrics", middleware.RequireRoles(models.RoleAdmin), d.metricsH.System)

	return r
}
