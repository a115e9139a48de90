package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, sellerID string, req model.AuctionRequest) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error)
	ActivateAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error)
	CloseAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, req model.BidRequest) (model.BidResult, error)
	RejectBidder(ctx context.Context, auctionID, sellerID, bidderID, reason string) (model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var body helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}
	req, err := body.ToModel()
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, nil)
		return
	}

	sellerID := helpers.CallerID(c)
	a, err := h.service.CreateAuction(c.Request.Context(), sellerID, req)
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(a), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.ID,
		"seller_id":  sellerID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions?status=active,draft
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	var statuses []model.AuctionStatus
	if raw := c.Query("status"); raw != "" {
		statuses = lo.Map(strings.Split(raw, ","), func(s string, _ int) model.AuctionStatus {
			return model.AuctionStatus(strings.TrimSpace(s))
		})
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), statuses...)
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions), "auctions retrieved successfully")
}

// ActivateAuctionHandler handles POST /auctions/:auction_id/activate
func (h *BiddingHandler) ActivateAuctionHandler(c *gin.Context) {
	h.sellerAction(c, "ActivateAuctionHandler", "auction activated", h.service.ActivateAuction)
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	h.sellerAction(c, "CloseAuctionHandler", "auction closed", h.service.CloseAuction)
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	h.sellerAction(c, "CancelAuctionHandler", "auction cancelled", h.service.CancelAuction)
}

func (h *BiddingHandler) sellerAction(c *gin.Context, handlerName, message string, action func(ctx context.Context, auctionID, sellerID string) (model.Auction, error)) {
	auctionID := c.Param("auction_id")
	sellerID := helpers.CallerID(c)

	a, err := action(c.Request.Context(), auctionID, sellerID)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, map[string]any{"auction_id": auctionID, "seller_id": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"auction_id": auctionID,
		"status":     a.Status,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	bidderID := helpers.CallerID(c)
	result, err := h.service.PlaceBid(c.Request.Context(), auctionID, bidderID, req.ToModel())
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewPlaceBidResponse(result), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":        result.Bid.BidID,
		"auction_id":    auctionID,
		"bidder_id":     bidderID,
		"winning":       result.Bid.Winning,
		"current_price": result.Auction.CurrentPrice.String(),
	})
}

// RejectBidderHandler handles POST /auctions/:auction_id/rejections
func (h *BiddingHandler) RejectBidderHandler(c *gin.Context) {
	var req helpers.RejectBidderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RejectBidderHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	sellerID := helpers.CallerID(c)
	a, err := h.service.RejectBidder(c.Request.Context(), auctionID, sellerID, req.BidderID, req.Reason)
	if err != nil {
		helpers.HandleServiceError(c, "RejectBidderHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "bidder rejected")
	helpers.LogSuccess("RejectBidderHandler", "bidder rejected", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  req.BidderID,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.HandleServiceError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := helpers.NewBidResponses(bids)
	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
}

// GetAuctionsByBidderHandler handles GET /bidders/:bidder_id/auctions
func (h *BiddingHandler) GetAuctionsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), bidderID)
	if err != nil && !errors.Is(err, biddingerrors.ErrBidderNoAuctions) {
		helpers.HandleServiceError(c, "GetAuctionsByBidderHandler", err, map[string]any{"bidder_id": bidderID})
		return
	}

	resp := helpers.NewAuctionResponses(auctions)
	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByBidderHandler", "auctions retrieved successfully", map[string]any{
		"bidder_id":      bidderID,
		"auctions_count": len(resp),
	})
}
