package api

import (
	"net/http"

	"dealsync-backend/internal/auth/delivery"
	authUsecase "dealsync-backend/internal/auth/usecase"
	commsDelivery "dealsync-backend/internal/comms/delivery"
	commsUsecase "dealsync-backend/internal/comms/usecase"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUc authUsecase.AuthUsecase, commsUc commsUsecase.CommsUsecase) {
	authHandler := delivery.NewAuthHandler(authUc)
	commsHandler := commsDelivery.NewCommsHandler(commsUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
			auth.POST("/imap", delivery.AuthMiddleware(authUc), authHandler.SetImapCredentials)
			auth.PUT("/identifiers", delivery.AuthMiddleware(authUc), authHandler.SetSelfIdentifiers)
		}

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(delivery.AuthMiddleware(authUc))
		{
			sync.POST("/transactions/:id", commsHandler.SyncTransaction)
			sync.POST("/scan", commsHandler.ScanUser)
			sync.POST("/scan/cancel", commsHandler.CancelScan)
			sync.POST("/attachments/backfill", commsHandler.BackfillAttachments)
		}

		// Transaction link routes (protected)
		transactions := api.Group("/transactions")
		transactions.Use(delivery.AuthMiddleware(authUc))
		{
			transactions.POST("/:id/autolink", commsHandler.AutoLinkTransaction)
			transactions.POST("/:id/links", commsHandler.ManualLink)
			transactions.DELETE("/:id/links/:messageId", commsHandler.Unlink)
		}

		// Message routes (protected)
		messages := api.Group("/messages")
		messages.Use(delivery.AuthMiddleware(authUc))
		{
			messages.GET("/search", commsHandler.SearchMessages)
		}
	}
}
