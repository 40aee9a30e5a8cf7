package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/config"
	"github.com/tduarte/mailmind/internal/content"
	"github.com/tduarte/mailmind/internal/process"
	"github.com/tduarte/mailmind/internal/proposal"
	"github.com/tduarte/mailmind/internal/store"
	"github.com/tduarte/mailmind/internal/sync"
)

// Server bundles the handlers' dependencies.
type Server struct {
	cfg       *config.Config
	db        *store.DB
	engine    *sync.Engine
	processor *process.Processor
	router    *content.Router
	proposals *proposal.Engine
	log       *zap.Logger
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, db *store.DB, engine *sync.Engine, processor *process.Processor,
	router *content.Router, proposals *proposal.Engine, log *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		db:        db,
		engine:    engine,
		processor: processor,
		router:    router,
		proposals: proposals,
		log:       log.Named("api"),
	}
}

// Router builds the gin engine with all routes configured.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// The local dashboard runs on a different port.
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		syncGroup := api.Group("/sync")
		{
			syncGroup.GET("/status", s.syncStatus)
			syncGroup.POST("/connect", s.syncConnect)
			syncGroup.POST("/disconnect", s.syncDisconnect)
			syncGroup.POST("/run", s.syncRun)
			syncGroup.GET("/folders", s.syncFolders)
		}

		emails := api.Group("/emails")
		{
			emails.GET("", s.listEmails)
			emails.GET("/:id", s.getEmail)
		}

		processGroup := api.Group("/process")
		{
			processGroup.POST("/run", s.processRun)
			processGroup.POST("/email/:id", s.processEmail)
			processGroup.GET("/stats", s.processStats)
		}

		contentGroup := api.Group("/content")
		{
			contentGroup.POST("/scan", s.contentScan)
			contentGroup.POST("/pipeline", s.contentPipeline)
			contentGroup.GET("/intelligence", s.contentIntelligence)
			contentGroup.GET("/links", s.highValueLinks)
			contentGroup.POST("/links/:id/complete", s.completeExtraction)
		}

		proposals := api.Group("/proposals")
		{
			proposals.POST("/generate", s.generateProposals)
			proposals.GET("", s.listProposals)
			proposals.GET("/:id", s.getProposal)
			proposals.POST("/:id/approve", s.approveProposal)
			proposals.POST("/:id/reject", s.rejectProposal)
		}
	}

	return r
}
