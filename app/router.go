// Package app wires the services into the HTTP API
package app

import (
	"net/http"
	"time"

	"bitwise74/fileshare-api/app/events"
	"bitwise74/fileshare-api/app/file"
	"bitwise74/fileshare-api/app/root"
	"bitwise74/fileshare-api/app/user"
	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxJSONBody = 1 << 20

type RouterConfig struct {
	Auth            *middleware.Auth
	Limiter         *middleware.RateLimiter
	CORSOrigins     []string
	TurnstileSecret string
}

func NewRouter(d *internal.Deps, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	store := persist.NewMemoryStore(time.Minute)

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken", file.PinHeader},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		ginzap.RecoveryWithZap(zap.L(), true),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodHead || c.Request.URL.Path == "/metrics"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	auth := cfg.Auth.Required()
	optionalAuth := cfg.Auth.Optional()
	turnstile := middleware.NewTurnstileMiddleware(cfg.TurnstileSecret)
	body := middleware.BodySizeLimiter(maxJSONBody)

	rateLimit := func(c *gin.Context) { c.Next() }
	if cfg.Limiter != nil {
		rateLimit = cfg.Limiter.Middleware()
	}

	// GET /metrics			-> Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// GET /link/:id		-> Share link, redirects to the file
	router.GET("/link/:id", rateLimit, optionalAuth, func(c *gin.Context) { file.FileLink(c, d) })

	m := router.Group("/api", rateLimit)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/validate		-> Validates a JWT token
		m.GET("/validate", auth, root.Validate)

		// GET /api/tags		-> Returns every tag name
		m.GET("/tags", cacheFor(store, 30), func(c *gin.Context) { file.TagList(c, d) })

		// GET /api/events		-> Streams file change events
		m.GET("/events", optionalAuth, func(c *gin.Context) { events.Stream(c, d) })
	}

	u := m.Group("/users", body)
	{
		// GET /api/users		-> Returns the user and their files
		u.GET("", auth, func(c *gin.Context) { user.UserFetch(c, d) })

		// POST /api/users 		-> Registers a new user
		u.POST("", turnstile, func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/users/login 	-> Logs in a user and sets the auth cookie
		u.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })
	}

	f := m.Group("/files", body)
	{
		// GET /api/files		-> Lists visible files, newest version of each
		f.GET("", optionalAuth, func(c *gin.Context) { file.FileList(c, d) })

		// GET /api/files/owned		-> Lists the caller's files
		f.GET("/owned", auth, func(c *gin.Context) { file.FileListOwned(c, d) })

		// POST /api/files/upload-url	-> Returns a presigned upload URL
		f.POST("/upload-url", auth, func(c *gin.Context) { file.FileUploadURL(c, d) })

		// POST /api/files         	-> Saves the metadata of an uploaded file
		f.POST("", auth, func(c *gin.Context) { file.FileSync(c, d) })

		// POST /api/files/bulk/delete	-> Deletes files in bulk
		f.POST("/bulk/delete", auth, func(c *gin.Context) { file.FileDeleteBulk(c, d) })

		// POST /api/files/bulk/tags	-> Tags files in bulk
		f.POST("/bulk/tags", auth, func(c *gin.Context) { file.FileTagBulk(c, d) })

		// GET /api/files/:id		-> Returns a file's metadata
		f.GET("/:id", optionalAuth, func(c *gin.Context) { file.FileFetch(c, d) })

		// GET /api/files/:id/versions	-> Returns the version history of a file
		f.GET("/:id/versions", optionalAuth, func(c *gin.Context) { file.FileVersions(c, d) })

		// GET /api/files/:id/download	-> Returns a download URL
		f.GET("/:id/download", optionalAuth, func(c *gin.Context) { file.FileDownload(c, d) })

		// GET /api/files/:id/preview	-> Returns an inline URL
		f.GET("/:id/preview", optionalAuth, func(c *gin.Context) { file.FilePreview(c, d) })

		// PATCH /api/files/:id		-> Updates a file
		f.PATCH("/:id", auth, func(c *gin.Context) { file.FileEdit(c, d) })

		// DELETE /api/files/:id	-> Deletes a file owned by a user
		f.DELETE("/:id", auth, func(c *gin.Context) { file.FileDelete(c, d) })

		// POST /api/files/:id/tags	-> Attaches tags to a file
		f.POST("/:id/tags", auth, func(c *gin.Context) { file.FileTag(c, d) })
	}

	return router
}

func cacheFor(store persist.CacheStore, sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
