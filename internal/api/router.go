package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/chain"
	"FundMe/internal/ledger"
	"FundMe/internal/recorder"
)

// Handler serves the ledger over HTTP.
type Handler struct {
	Chain    *chain.Chain
	Ledger   *ledger.FundMe
	Recorder recorder.Recorder
}

// SetupRouter initializes and returns the Gin router with all routes configured.
func SetupRouter(h *Handler, limits RateLimiterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Any("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	tx := r.Group("/", RateLimiterMiddleware(limits))
	tx.POST("/fund", h.Fund)
	tx.POST("/withdraw", h.Withdraw)
	tx.POST("/cheaper-withdraw", h.CheaperWithdraw)

	r.GET("/owner", h.GetOwner)
	r.GET("/price-feed", h.GetPriceFeed)
	r.GET("/price", h.GetPrice)
	r.GET("/funders/:index", h.GetFunder)
	r.GET("/funded/:address", h.GetAmountFunded)
	r.GET("/balance/:address", h.GetBalance)
	r.GET("/nonce/:address", h.GetNonce)
	r.GET("/status", h.GetStatus)
	r.GET("/history", h.GetHistory)
	r.GET("/events/:address", h.GetEvents)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
