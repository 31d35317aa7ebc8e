package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	campaigndomain "github.com/partnerledger/core/internal/campaign/domain"
	campaignrepo "github.com/partnerledger/core/internal/campaign/repository"
	campaignservice "github.com/partnerledger/core/internal/campaign/service"
	"github.com/partnerledger/core/internal/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCampaignTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:campaign_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&store.Campaign{}, &store.Order{}, &store.OrderItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newCampaignService(t *testing.T, db *gorm.DB) campaigndomain.Service {
	t.Helper()
	return campaignservice.NewService(campaignservice.Params{
		Log:  zap.NewNop(),
		Repo: campaignrepo.Provide(db),
	})
}

func TestClaimSlotSoldOutWhenFull(t *testing.T) {
	ctx := context.Background()
	db := setupCampaignTestDB(t)
	svc := newCampaignService(t, db)

	campaign := store.Campaign{ID: 1, Title: "c", BrandUserID: 1, TotalSlots: 1, UsedSlots: 1, Status: store.CampaignStatusActive}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	err := svc.ClaimSlot(ctx, db, campaign.ID, nil)
	if err != campaigndomain.ErrSoldOut {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}
}

func TestClaimSlotSucceedsAndIncrementsUsedSlots(t *testing.T) {
	ctx := context.Background()
	db := setupCampaignTestDB(t)
	svc := newCampaignService(t, db)

	campaign := store.Campaign{ID: 2, Title: "c", BrandUserID: 1, TotalSlots: 5, UsedSlots: 0, Status: store.CampaignStatusActive}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	if err := svc.ClaimSlot(ctx, db, campaign.ID, nil); err != nil {
		t.Fatalf("claim slot: %v", err)
	}

	var reloaded store.Campaign
	if err := db.Where("id = ?", campaign.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	if reloaded.UsedSlots != 1 {
		t.Fatalf("expected used_slots=1, got %d", reloaded.UsedSlots)
	}
}

func TestClaimSlotSoldOutForPartnerCap(t *testing.T) {
	ctx := context.Background()
	db := setupCampaignTestDB(t)
	svc := newCampaignService(t, db)

	campaign := store.Campaign{
		ID: 3, Title: "c", BrandUserID: 1, TotalSlots: 100, UsedSlots: 0, Status: store.CampaignStatusActive,
		Assignments: datatypes.JSONMap{"MED-1": map[string]any{"limit": float64(1)}},
	}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	managerName := "MED-1"
	existingOrder := store.Order{ID: 10, UserID: 1, BrandUserID: 1, ManagerName: &managerName, Status: store.OrderStatusOrdered, BuyerMobile: "9000000000"}
	if err := db.Create(&existingOrder).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	item := store.OrderItem{ID: 20, OrderID: existingOrder.ID, ProductID: "p1", Title: "p1", PriceAtPurchasePaise: 100, CampaignID: &campaign.ID, Quantity: 1}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}

	err := svc.ClaimSlot(ctx, db, campaign.ID, &managerName)
	if err != campaigndomain.ErrSoldOutForPartner {
		t.Fatalf("expected ErrSoldOutForPartner, got %v", err)
	}
}
