package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accountdelivery "github.com/coder92330/nylas-mail/internal/account/delivery"
	authdelivery "github.com/coder92330/nylas-mail/internal/auth/delivery"
	deltadelivery "github.com/coder92330/nylas-mail/internal/delta/delivery"
	maildelivery "github.com/coder92330/nylas-mail/internal/mail/delivery"
	"github.com/coder92330/nylas-mail/pkg/config"
)

func SetupRoutes(r *gin.Engine, accountHandler *accountdelivery.AccountHandler, mailHandler *maildelivery.MailHandler, deltaHandler *deltadelivery.DeltaHandler, cfg *config.Config) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Account management; the sync engine runs behind a trusted edge, so
		// enrollment is open and tokens are minted per account.
		accounts := api.Group("/accounts")
		{
			accounts.POST("", accountHandler.Create)
			accounts.GET("", accountHandler.List)
			accounts.GET("/:id", accountHandler.Get)
			accounts.PUT("/:id", accountHandler.Update)
			accounts.DELETE("/:id", accountHandler.Delete)
			accounts.POST("/:id/sync", accountHandler.SyncNow)
			accounts.POST("/:id/token", accountHandler.Token)
		}

		authed := authdelivery.AuthMiddleware(cfg.JWTSecret)

		// Delta feed (protected, account-scoped)
		deltas := api.Group("/delta")
		deltas.Use(authed)
		{
			deltas.GET("/streaming", deltaHandler.Stream)
			deltas.POST("/latest_cursor", deltaHandler.LatestCursor)
		}

		// Synced mail graph (protected, account-scoped)
		mail := api.Group("")
		mail.Use(authed)
		{
			mail.GET("/threads", mailHandler.ListThreads)
			mail.GET("/threads/:id", mailHandler.GetThread)
			mail.GET("/mailboxes", mailHandler.ListMailboxes)
			mail.GET("/contacts", mailHandler.ListContacts)

			mail.PATCH("/messages/:id/read", mailHandler.MarkRead)
			mail.PATCH("/messages/:id/unread", mailHandler.MarkUnread)
			mail.PATCH("/messages/:id/star", mailHandler.Star)
			mail.PATCH("/messages/:id/unstar", mailHandler.Unstar)
			mail.PATCH("/messages/:id/mailbox", mailHandler.Move)
		}
	}
}
