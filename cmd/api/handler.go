package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	accountdelivery "github.com/coder92330/nylas-mail/internal/account/delivery"
	accountusecase "github.com/coder92330/nylas-mail/internal/account/usecase"
	"github.com/coder92330/nylas-mail/internal/delta"
	deltadelivery "github.com/coder92330/nylas-mail/internal/delta/delivery"
	maildelivery "github.com/coder92330/nylas-mail/internal/mail/delivery"
	mailusecase "github.com/coder92330/nylas-mail/internal/mail/usecase"
	"github.com/coder92330/nylas-mail/pkg/config"
)

type Handler struct {
	accountHandler *accountdelivery.AccountHandler
	mailHandler    *maildelivery.MailHandler
	deltaHandler   *deltadelivery.DeltaHandler
	config         *config.Config
}

func NewHandler(accountUc accountusecase.AccountUsecase, mailUc mailusecase.MailUsecase, feed *delta.Feed, cfg *config.Config, logger *logrus.Logger) *Handler {
	return &Handler{
		accountHandler: accountdelivery.NewAccountHandler(accountUc, cfg.JWTSecret),
		mailHandler:    maildelivery.NewMailHandler(mailUc),
		deltaHandler:   deltadelivery.NewDeltaHandler(feed, logger),
		config:         cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.accountHandler, h.mailHandler, h.deltaHandler, h.config)

	return r.Run(addr)
}
