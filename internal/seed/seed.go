// Package seed provides the opt-in bootstrap stages (SEED_ADMIN/SEED_E2E/
// SEED_DEV) run once at startup before traffic is accepted: a platform
// operator account, and — for local/E2E use only — a sample
// agency->mediator->buyer partner chain with a small campaign to exercise
// against.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/auth/password"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/gorm"
)

// EnsureAdmin upserts the platform operator account named by
// ADMIN_SEED_{MOBILE,USERNAME,PASSWORD,NAME}. Idempotent: reruns on every
// boot find the existing row by username and leave it untouched.
func EnsureAdmin(db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
	if !cfg.SeedAdmin {
		return nil
	}
	if cfg.AdminSeedUsername == "" || cfg.AdminSeedPassword == "" {
		return errors.New("seed: ADMIN_SEED_USERNAME and ADMIN_SEED_PASSWORD are required when SEED_ADMIN is set")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing store.User
		err := tx.Where("username = ?", cfg.AdminSeedUsername).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := password.Hash(cfg.AdminSeedPassword)
		if err != nil {
			return err
		}

		roles, _ := json.Marshal([]store.Role{store.RoleAdmin})
		username := cfg.AdminSeedUsername
		mobile := cfg.AdminSeedMobile
		if mobile == "" {
			// Admin/ops accounts authenticate by username (spec.md §4.9); a
			// placeholder keeps the not-null/unique mobile column satisfiable.
			mobile = fmt.Sprintf("000000%04d", node.Generate()%10000)
		}

		admin := store.User{
			ID:           node.Generate(),
			Role:         store.RoleAdmin,
			Roles:        roles,
			Status:       store.UserStatusActive,
			Mobile:       mobile,
			Username:     &username,
			PasswordHash: hash,
			Name:         cfg.AdminSeedName,
			KYCStatus:    "verified",
		}
		return tx.Create(&admin).Error
	})
}

// EnsureE2EFixtures seeds a minimal agency -> mediator -> buyer chain plus
// one active campaign, for scripted end-to-end exercises against a fresh
// database.
func EnsureE2EFixtures(db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
	if !cfg.SeedE2E {
		return nil
	}
	return ensureSampleChain(db, node, "e2e")
}

// EnsureDevFixtures seeds the same sample chain as EnsureE2EFixtures for
// interactive local development. Refused in production regardless of the
// env var (spec.md §6: "SEED_DEV refused in production").
func EnsureDevFixtures(db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
	if !cfg.SeedDev {
		return nil
	}
	if cfg.IsProduction() {
		return errors.New("seed: SEED_DEV is refused in production")
	}
	return ensureSampleChain(db, node, "dev")
}

func ensureSampleChain(db *gorm.DB, node *snowflake.Node, suffix string) error {
	agencyCode := "agency-" + suffix
	mediatorCode := "mediator-" + suffix
	brandCode := "brand-" + suffix

	return db.Transaction(func(tx *gorm.DB) error {
		if _, err := ensureUser(tx, node, store.User{
			Role:         store.RoleAgency,
			Status:       store.UserStatusActive,
			Mobile:       "91000" + suffix + "1",
			Name:         "Sample Agency",
			MediatorCode: ptr(agencyCode),
		}); err != nil {
			return err
		}

		if _, err := ensureUser(tx, node, store.User{
			Role:         store.RoleMediator,
			Status:       store.UserStatusActive,
			Mobile:       "91000" + suffix + "2",
			Name:         "Sample Mediator",
			MediatorCode: ptr(mediatorCode),
			ParentCode:   ptr(agencyCode),
		}); err != nil {
			return err
		}

		brand, err := ensureUser(tx, node, store.User{
			Role:      store.RoleBrand,
			Status:    store.UserStatusActive,
			Mobile:    "91000" + suffix + "3",
			Name:      "Sample Brand",
			BrandCode: ptr(brandCode),
		})
		if err != nil {
			return err
		}

		if _, err := ensureUser(tx, node, store.User{
			Role:       store.RoleBuyer,
			Status:     store.UserStatusActive,
			Mobile:     "91000" + suffix + "4",
			Name:       "Sample Buyer",
			ParentCode: ptr(mediatorCode),
		}); err != nil {
			return err
		}

		var campaignCount int64
		if err := tx.Model(&store.Campaign{}).
			Where("brand_user_id = ?", brand.ID).Count(&campaignCount).Error; err != nil {
			return err
		}
		if campaignCount == 0 {
			campaign := store.Campaign{
				ID:                 node.Generate(),
				Title:              "Sample Campaign",
				BrandUserID:        brand.ID,
				OriginalPricePaise: 99900,
				PricePaise:         99900,
				PayoutPaise:        15000,
				TotalSlots:         10,
				Status:             store.CampaignStatusActive,
			}
			if err := tx.Create(&campaign).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func ensureUser(tx *gorm.DB, node *snowflake.Node, candidate store.User) (store.User, error) {
	var existing store.User
	err := tx.Where("mobile = ?", candidate.Mobile).First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return store.User{}, err
	}

	roles, _ := json.Marshal([]store.Role{candidate.Role})
	candidate.ID = node.Generate()
	candidate.Roles = roles
	candidate.PasswordHash, err = password.Hash("changeme")
	if err != nil {
		return store.User{}, err
	}
	if candidate.KYCStatus == "" {
		candidate.KYCStatus = "verified"
	}
	if err := tx.Create(&candidate).Error; err != nil {
		return store.User{}, err
	}
	return candidate, nil
}

func ptr(s string) *string { return &s }
