package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type auctionRecord struct {
	ID              string              `gorm:"primaryKey;type:varchar(64)"`
	SellerID        string              `gorm:"type:varchar(64);index;not null"`
	Title           string              `gorm:"type:varchar(255);not null"`
	Description     string              `gorm:"type:text"`
	StartingPrice   decimal.Decimal     `gorm:"type:text;not null"`
	CurrentPrice    decimal.Decimal     `gorm:"type:text;not null"`
	BidIncrement    decimal.Decimal     `gorm:"type:text;not null"`
	BuyNowPrice     decimal.NullDecimal `gorm:"type:text"`
	StartTime       time.Time           `gorm:"not null"`
	EndTime         time.Time           `gorm:"not null"`
	AutoExtend      bool
	ExtendThreshold time.Duration
	ExtendDuration  time.Duration
	Status          string    `gorm:"type:varchar(16);index;not null"`
	HighestBidderID string    `gorm:"type:varchar(64)"`
	BidCount        int       `gorm:"not null"`
	RejectedBidders []string  `gorm:"serializer:json"`
	NextSeq         uint64    `gorm:"not null"`
	Version         int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (auctionRecord) TableName() string {
	return "auctions"
}

type bidRecord struct {
	BidID           string              `gorm:"primaryKey;type:varchar(64)"`
	AuctionID       string              `gorm:"type:varchar(64);index:idx_bids_auction_seq,priority:1;not null"`
	BidderID        string              `gorm:"type:varchar(64);index;not null"`
	Amount          decimal.Decimal     `gorm:"type:text;not null"`
	OfferedAmount   decimal.Decimal     `gorm:"type:text;not null;default:'0'"`
	MaxAmount       decimal.NullDecimal `gorm:"type:text"`
	Kind            string              `gorm:"type:varchar(16);not null"`
	Winning         bool
	Rejected        bool
	RejectionReason string
	RejectedAt      *time.Time
	Seq             uint64    `gorm:"index:idx_bids_auction_seq,priority:2"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
}

func (bidRecord) TableName() string {
	return "bids"
}

// GormRepo stores auctions in a SQL database through gorm. Commits use the
// auction's version column as an optimistic lock.
type GormRepo struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*GormRepo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// sqlite allows a single writer; one connection also keeps ":memory:" shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return NewGormRepo(db)
}

// NewGormRepo migrates the schema on db and wraps it
func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&auctionRecord{}, &bidRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &GormRepo{db: db}, nil
}

// Close releases the underlying connection pool
func (r *GormRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormRepo) CreateAuction(ctx context.Context, auction model.Auction) error {
	if auction.ID == "" {
		return fmt.Errorf("create auction: %w - empty id", biddingerrors.ErrInvalidAuction)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&auctionRecord{}).Where("id = ?", auction.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
		}
		rec := toAuctionRecord(auction)
		return tx.Create(&rec).Error
	})
}

func (r *GormRepo) LoadAuctionState(ctx context.Context, auctionID string) (model.AuctionSnapshot, error) {
	db := r.db.WithContext(ctx)

	var rec auctionRecord
	if err := db.Where("id = ?", auctionID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.AuctionSnapshot{}, fmt.Errorf("load auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.AuctionSnapshot{}, fmt.Errorf("load auction %s: %w", auctionID, err)
	}

	var bids []bidRecord
	if err := db.Where("auction_id = ?", auctionID).Order("seq asc").Find(&bids).Error; err != nil {
		return model.AuctionSnapshot{}, fmt.Errorf("load bids for auction %s: %w", auctionID, err)
	}

	return model.AuctionSnapshot{
		Auction: rec.toModel(),
		Bids:    lo.Map(bids, func(b bidRecord, _ int) model.Bid { return b.toModel() }),
	}, nil
}

// CommitAuctionState writes the auction row guarded by its version and applies
// the bid deltas in the same transaction
func (r *GormRepo) CommitAuctionState(ctx context.Context, auctionID string, next model.AuctionSnapshot, deltas []model.BidDelta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := toAuctionRecord(next.Auction)
		res := tx.Model(&auctionRecord{}).
			Where("id = ? AND version = ?", auctionID, next.Auction.Version-1).
			Select("*").
			Updates(&rec)
		if res.Error != nil {
			return fmt.Errorf("commit auction %s: %w", auctionID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&auctionRecord{}).Where("id = ?", auctionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("commit auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
			}
			return fmt.Errorf("commit auction %s: %w - version %d is stale", auctionID, biddingerrors.ErrCommitConflict, next.Auction.Version-1)
		}

		for _, d := range deltas {
			b := toBidRecord(d.Bid)
			if d.Created {
				if err := tx.Create(&b).Error; err != nil {
					return fmt.Errorf("insert bid %s: %w", b.BidID, err)
				}
				continue
			}
			if err := tx.Save(&b).Error; err != nil {
				return fmt.Errorf("update bid %s: %w", b.BidID, err)
			}
		}
		return nil
	})
}

func (r *GormRepo) ListAuctions(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error) {
	q := r.db.WithContext(ctx).Order("start_time asc, id asc")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", lo.Map(statuses, func(s model.AuctionStatus, _ int) string { return string(s) }))
	}

	var recs []auctionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return lo.Map(recs, func(a auctionRecord, _ int) model.Auction { return a.toModel() }), nil
}

func (r *GormRepo) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	db := r.db.WithContext(ctx)

	var ids []string
	if err := db.Model(&bidRecord{}).Where("bidder_id = ?", bidderID).Distinct().Pluck("auction_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoAuctions)
	}

	var recs []auctionRecord
	if err := db.Where("id IN ?", ids).Order("start_time asc, id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	return lo.Map(recs, func(a auctionRecord, _ int) model.Auction { return a.toModel() }), nil
}

func toAuctionRecord(a model.Auction) auctionRecord {
	return auctionRecord{
		ID:              a.ID,
		SellerID:        a.SellerID,
		Title:           a.Title,
		Description:     a.Description,
		StartingPrice:   a.StartingPrice,
		CurrentPrice:    a.CurrentPrice,
		BidIncrement:    a.BidIncrement,
		BuyNowPrice:     a.BuyNowPrice,
		StartTime:       a.StartTime.UTC(),
		EndTime:         a.EndTime.UTC(),
		AutoExtend:      a.AutoExtend,
		ExtendThreshold: a.ExtendThreshold,
		ExtendDuration:  a.ExtendDuration,
		Status:          string(a.Status),
		HighestBidderID: a.HighestBidderID,
		BidCount:        a.BidCount,
		RejectedBidders: append([]string{}, a.RejectedBidders...),
		NextSeq:         a.NextSeq,
		Version:         a.Version,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (rec auctionRecord) toModel() model.Auction {
	a := model.Auction{
		ID:              rec.ID,
		SellerID:        rec.SellerID,
		Title:           rec.Title,
		Description:     rec.Description,
		StartingPrice:   rec.StartingPrice,
		CurrentPrice:    rec.CurrentPrice,
		BidIncrement:    rec.BidIncrement,
		BuyNowPrice:     rec.BuyNowPrice,
		StartTime:       rec.StartTime.UTC(),
		EndTime:         rec.EndTime.UTC(),
		AutoExtend:      rec.AutoExtend,
		ExtendThreshold: rec.ExtendThreshold,
		ExtendDuration:  rec.ExtendDuration,
		Status:          model.AuctionStatus(rec.Status),
		HighestBidderID: rec.HighestBidderID,
		BidCount:        rec.BidCount,
		NextSeq:         rec.NextSeq,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt.UTC(),
		UpdatedAt:       rec.UpdatedAt.UTC(),
	}
	if len(rec.RejectedBidders) > 0 {
		a.RejectedBidders = rec.RejectedBidders
	}
	return a
}

func toBidRecord(b model.Bid) bidRecord {
	rec := bidRecord{
		BidID:           b.BidID,
		AuctionID:       b.AuctionID,
		BidderID:        b.BidderID,
		Amount:          b.Amount,
		OfferedAmount:   b.OfferedAmount,
		MaxAmount:       b.MaxAmount,
		Kind:            string(b.Kind),
		Winning:         b.Winning,
		Rejected:        b.Rejected,
		RejectionReason: b.RejectionReason,
		Seq:             b.Seq,
		CreatedAt:       b.CreatedAt.UTC(),
	}
	if b.RejectedAt != nil {
		at := b.RejectedAt.UTC()
		rec.RejectedAt = &at
	}
	return rec
}

func (rec bidRecord) toModel() model.Bid {
	b := model.Bid{
		BidID:           rec.BidID,
		AuctionID:       rec.AuctionID,
		BidderID:        rec.BidderID,
		Amount:          rec.Amount,
		OfferedAmount:   rec.OfferedAmount,
		MaxAmount:       rec.MaxAmount,
		Kind:            model.BidKind(rec.Kind),
		Winning:         rec.Winning,
		Rejected:        rec.Rejected,
		RejectionReason: rec.RejectionReason,
		Seq:             rec.Seq,
		CreatedAt:       rec.CreatedAt.UTC(),
	}
	if rec.RejectedAt != nil {
		at := rec.RejectedAt.UTC()
		b.RejectedAt = &at
	}
	return b
}
