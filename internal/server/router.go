package server

import (
	handler "auction-engine/services/bidding/handler"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Options tunes the router
type Options struct {
	// BidRateLimit is bids per second per caller; zero disables limiting
	BidRateLimit float64
	BidRateBurst int
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, opts Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(IdentityMiddleware)      // caller id from the gateway header
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)

	router.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	placeBid := []gin.HandlerFunc{RequireIdentity}
	if opts.BidRateLimit > 0 {
		placeBid = append(placeBid, NewBidRateLimiter(opts.BidRateLimit, opts.BidRateBurst).Middleware)
	}
	placeBid = append(placeBid, biddingHandler.PlaceBidHandler)

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.POST("", RequireIdentity, biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/activate", RequireIdentity, biddingHandler.ActivateAuctionHandler)
		auctions.POST("/:auction_id/close", RequireIdentity, biddingHandler.CloseAuctionHandler)
		auctions.POST("/:auction_id/cancel", RequireIdentity, biddingHandler.CancelAuctionHandler)
		auctions.POST("/:auction_id/bids", placeBid...)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.POST("/:auction_id/rejections", RequireIdentity, biddingHandler.RejectBidderHandler)
	}

	bidders := router.Group("/bidders")
	{
		bidders.GET("/:bidder_id/auctions", biddingHandler.GetAuctionsByBidderHandler)
	}

	return router
}
