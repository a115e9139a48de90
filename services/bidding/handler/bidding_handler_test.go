package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// newRouter wires handler routes behind a stand-in for the identity middleware
func newRouter(h *BiddingHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(helpers.IdentityKey, c.GetHeader("X-Bidder-ID"))
	})
	router.GET("/auctions", h.ListAuctionsHandler)
	router.POST("/auctions", h.CreateAuctionHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.POST("/auctions/:auction_id/activate", h.ActivateAuctionHandler)
	router.POST("/auctions/:auction_id/close", h.CloseAuctionHandler)
	router.POST("/auctions/:auction_id/cancel", h.CancelAuctionHandler)
	router.POST("/auctions/:auction_id/bids", h.PlaceBidHandler)
	router.GET("/auctions/:auction_id/bids", h.GetBidsByAuctionHandler)
	router.GET("/auctions/:auction_id/winning", h.GetWinningBidHandler)
	router.POST("/auctions/:auction_id/rejections", h.RejectBidderHandler)
	router.GET("/bidders/:bidder_id/auctions", h.GetAuctionsByBidderHandler)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path, caller string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Bidder-ID", caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, w.Code, env.Status)
	return w, env
}

func sampleAuction() model.Auction {
	return model.Auction{
		ID:              "a1",
		SellerID:        "seller",
		Title:           "Vintage camera",
		StartingPrice:   decimal.NewFromInt(10),
		BidIncrement:    decimal.NewFromInt(5),
		CurrentPrice:    decimal.NewFromInt(105),
		HighestBidderID: "B",
		BidCount:        2,
		Status:          model.StatusActive,
		StartTime:       now,
		EndTime:         now.Add(time.Hour),
		Version:         3,
	}
}

func sampleBid(bidderID string, amount int64, winning bool) model.Bid {
	return model.Bid{
		BidID:     uuid.NewString(),
		AuctionID: "a1",
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		Kind:      model.BidManual,
		Winning:   winning,
		CreatedAt: now,
	}
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		caller         string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data helpers.PlaceBidResponse)
	}{
		{
			name:        "success_proxy_bid",
			caller:      "B",
			requestBody: `{"amount": "15", "max_amount": 150}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				winning := sampleBid("B", 105, true)
				winning.Kind = model.BidProxy
				winning.MaxAmount = decimal.NewNullDecimal(decimal.NewFromInt(150))
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "B", gomock.Any()).
					DoAndReturn(func(_ any, _, _ string, req model.BidRequest) (model.BidResult, error) {
						if req.Kind != model.BidProxy || !req.Amount.Equal(decimal.NewFromInt(15)) || !req.MaxAmount.Decimal.Equal(decimal.NewFromInt(150)) {
							return model.BidResult{}, errors.New("request not converted")
						}
						return model.BidResult{
							Bid:     winning,
							Outbid:  []model.Bid{sampleBid("A", 100, false)},
							Auction: sampleAuction(),
						}, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validateData: func(t *testing.T, data helpers.PlaceBidResponse) {
				_, parseErr := uuid.Parse(data.Bid.BidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, "105", data.Bid.Amount)
				require.Equal(t, "150", *data.Bid.MaxAmount)
				require.True(t, data.Bid.Winning)
				require.Equal(t, []string{"A"}, data.Outbid)
				require.Equal(t, "110", data.Auction.MinimumNextBid)
			},
		},
		{
			name:           "invalid_json",
			caller:         "B",
			requestBody:    `{invalid json}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "unknown_kind",
			caller:         "B",
			requestBody:    `{"amount": 20, "kind": "sealed"}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "bid_too_low",
			caller:      "C",
			requestBody: `{"amount": 100}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), "a1", "C", gomock.Any()).
					Return(model.BidResult{}, biddingerrors.Reject(biddingerrors.ReasonBelowMinimum, "minimum next bid is 110"))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
		},
		{
			name:        "seller_bid_rejected",
			caller:      "seller",
			requestBody: `{"amount": 200}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), "a1", "seller", gomock.Any()).
					Return(model.BidResult{}, biddingerrors.Reject(biddingerrors.ReasonSellerBid, "seller cannot bid"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "bid rejected: seller_cannot_bid",
		},
		{
			name:        "auction_closed",
			caller:      "C",
			requestBody: `{"amount": 200}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), "a1", "C", gomock.Any()).
					Return(model.BidResult{}, fmt.Errorf("%w - status is ended", biddingerrors.ErrAuctionNotActive))
			},
			expectedStatus: http.StatusGone,
			expectedMsg:    "auction is not accepting bids",
		},
		{
			name:        "retries_exhausted",
			caller:      "C",
			requestBody: `{"amount": 200}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), "a1", "C", gomock.Any()).
					Return(model.BidResult{}, fmt.Errorf("service: %w - conflicting", biddingerrors.ErrTransientFailure))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "temporary failure, please resubmit",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			_, env := doRequest(t, newRouter(NewBiddingHandler(mockService)), http.MethodPost, "/auctions/a1/bids", tc.caller, tc.requestBody)
			require.Equal(t, tc.expectedStatus, env.Status)
			require.Equal(t, tc.expectedMsg, env.Message)

			if tc.validateData != nil {
				var data helpers.PlaceBidResponse
				require.NoError(t, json.Unmarshal(env.Data, &data))
				tc.validateData(t, data)
			} else {
				require.NotEmpty(t, env.Error)
			}
		})
	}
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	valid := map[string]any{
		"title":            "Vintage camera",
		"starting_price":   "10",
		"bid_increment":    "5",
		"start_time":       now.Format(time.RFC3339),
		"end_time":         now.Add(time.Hour).Format(time.RFC3339),
		"auto_extend":      true,
		"extend_threshold": "5m",
		"extend_duration":  "10m",
	}

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
	}{
		{
			name:        "success",
			requestBody: valid,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CreateAuction(gomock.Any(), "seller", gomock.Any()).
					DoAndReturn(func(_ any, _ string, req model.AuctionRequest) (model.Auction, error) {
						if req.ExtendDuration != 10*time.Minute || !req.StartingPrice.Equal(decimal.NewFromInt(10)) {
							return model.Auction{}, errors.New("request not converted")
						}
						a := sampleAuction()
						a.Status = model.StatusDraft
						return a, nil
					})
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing_title",
			requestBody:    map[string]any{"starting_price": "10"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad_duration",
			requestBody:    map[string]any{"title": "Lamp", "extend_duration": "a while"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "rejected_by_service",
			requestBody: valid,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CreateAuction(gomock.Any(), "seller", gomock.Any()).
					Return(model.Auction{}, fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction))
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			_, env := doRequest(t, newRouter(NewBiddingHandler(mockService)), http.MethodPost, "/auctions", "seller", tc.requestBody)
			require.Equal(t, tc.expectedStatus, env.Status)

			if tc.expectedStatus == http.StatusCreated {
				var data helpers.AuctionResponse
				require.NoError(t, json.Unmarshal(env.Data, &data))
				require.Equal(t, "a1", data.AuctionID)
				require.Equal(t, "draft", data.Status)
			}
		})
	}
}

// Test the seller-only lifecycle handlers
func TestSellerActionHandlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		action         string
		caller         string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:   "activate",
			action: "activate",
			caller: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ActivateAuction(gomock.Any(), "a1", "seller").Return(sampleAuction(), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction activated",
		},
		{
			name:   "close",
			action: "close",
			caller: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				a := sampleAuction()
				a.Status = model.StatusEnded
				m.EXPECT().CloseAuction(gomock.Any(), "a1", "seller").Return(a, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction closed",
		},
		{
			name:   "cancel_not_owner",
			action: "cancel",
			caller: "mallory",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CancelAuction(gomock.Any(), "a1", "mallory").
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrForbidden))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "operation not permitted",
		},
		{
			name:   "activate_twice",
			action: "activate",
			caller: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ActivateAuction(gomock.Any(), "a1", "seller").
					Return(model.Auction{}, fmt.Errorf("%w - cannot activate active auction", biddingerrors.ErrInvalidTransition))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "invalid auction state transition",
		},
		{
			name:   "unknown_auction",
			action: "close",
			caller: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CloseAuction(gomock.Any(), "a1", "seller").
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			_, env := doRequest(t, newRouter(NewBiddingHandler(mockService)), http.MethodPost, "/auctions/a1/"+tc.action, tc.caller, nil)
			require.Equal(t, tc.expectedStatus, env.Status)
			require.Equal(t, tc.expectedMsg, env.Message)
		})
	}
}

// Test RejectBidderHandler
func TestRejectBidderHandler(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockService := NewMockBiddingServiceInterface(ctrl)
	router := newRouter(NewBiddingHandler(mockService))

	a := sampleAuction()
	a.HighestBidderID = "A"
	a.RejectedBidders = []string{"B"}
	mockService.EXPECT().RejectBidder(gomock.Any(), "a1", "seller", "B", "shill bidding").Return(a, nil)

	_, env := doRequest(t, router, http.MethodPost, "/auctions/a1/rejections", "seller", helpers.RejectBidderRequest{BidderID: "B", Reason: "shill bidding"})
	require.Equal(t, http.StatusOK, env.Status)
	var data helpers.AuctionResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, []string{"B"}, data.RejectedBidders)
	require.Equal(t, "A", data.HighestBidderID)

	_, env = doRequest(t, router, http.MethodPost, "/auctions/a1/rejections", "seller", `{"reason": "no bidder"}`)
	require.Equal(t, http.StatusBadRequest, env.Status)
}

// Test GetBidsByAuctionHandler
func TestGetBidsByAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedCount  int
	}{
		{
			name: "auction_with_bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "a1").
					Return([]model.Bid{sampleBid("A", 100, false), sampleBid("B", 105, true)}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name: "auction_without_bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "a1").Return(nil, fmt.Errorf("service: %w", biddingerrors.ErrNoBids))
			},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name: "unknown_auction",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "a1").Return(nil, fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			_, env := doRequest(t, newRouter(NewBiddingHandler(mockService)), http.MethodGet, "/auctions/a1/bids", "", nil)
			require.Equal(t, tc.expectedStatus, env.Status)
			if tc.expectedStatus == http.StatusOK {
				var bids []helpers.BidResponse
				require.NoError(t, json.Unmarshal(env.Data, &bids))
				require.Len(t, bids, tc.expectedCount)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "winning_bid",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(sampleBid("B", 105, true), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
		},
		{
			name: "no_bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(model.Bid{}, biddingerrors.ErrNoBids)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no winning bid found",
		},
		{
			name: "store_failure",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(model.Bid{}, errors.New("disk on fire"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			_, env := doRequest(t, newRouter(NewBiddingHandler(mockService)), http.MethodGet, "/auctions/a1/winning", "", nil)
			require.Equal(t, tc.expectedStatus, env.Status)
			require.Equal(t, tc.expectedMsg, env.Message)
			if tc.expectedStatus == http.StatusOK {
				var bid helpers.BidResponse
				require.NoError(t, json.Unmarshal(env.Data, &bid))
				require.Equal(t, "B", bid.BidderID)
				require.Equal(t, "105", bid.Amount)
				require.Equal(t, now.Format(time.RFC3339), bid.CreatedAt)
			}
		})
	}
}

// Test the auction listing handlers
func TestAuctionListHandlers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockService := NewMockBiddingServiceInterface(ctrl)
	router := newRouter(NewBiddingHandler(mockService))

	mockService.EXPECT().ListAuctions(gomock.Any(), model.StatusActive, model.StatusDraft).Return([]model.Auction{sampleAuction()}, nil)
	_, env := doRequest(t, router, http.MethodGet, "/auctions?status=active,draft", "", nil)
	require.Equal(t, http.StatusOK, env.Status)
	var auctions []helpers.AuctionResponse
	require.NoError(t, json.Unmarshal(env.Data, &auctions))
	require.Len(t, auctions, 1)

	mockService.EXPECT().GetAuctionsByBidder(gomock.Any(), "nobody").Return(nil, biddingerrors.ErrBidderNoAuctions)
	_, env = doRequest(t, router, http.MethodGet, "/bidders/nobody/auctions", "", nil)
	require.Equal(t, http.StatusOK, env.Status)
	require.JSONEq(t, "[]", string(env.Data))

	mockService.EXPECT().GetAuction(gomock.Any(), "a1").Return(sampleAuction(), nil)
	_, env = doRequest(t, router, http.MethodGet, "/auctions/a1", "", nil)
	require.Equal(t, http.StatusOK, env.Status)
	var a helpers.AuctionResponse
	require.NoError(t, json.Unmarshal(env.Data, &a))
	require.Equal(t, "105", a.CurrentPrice)
	require.Equal(t, "B", a.HighestBidderID)
}
