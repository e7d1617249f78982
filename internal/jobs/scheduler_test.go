package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/locks"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/secrets"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sealer, _ := secrets.NewSealer(secrets.Config{Key: "k"})
	store := campaigns.NewStore(client, sealer)
	lockManager := locks.NewLockManager(client)
	s := NewScheduler(store, lockManager, "")

	now := time.Now()
	seed := func(id string, expiresAt time.Time, claims, max int) {
		c := &models.Campaign{
			ID:          id,
			Title:       id,
			CreatorID:   "creator",
			CommunityID: "typeers",
			Words:       []string{"ONE", "TWO", "THREE"},
			RewardWords: map[int]models.Reward{0: {ID: "rw", Type: models.RewardTypeCoupon, Value: "X"}},
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
			MaxClaims:   max,
			ClaimCount:  claims,
			Status:      models.StatusPending,
			Tier:        models.TierStandard,
		}
		if err := store.Create(ctx, c); err != nil {
			t.Fatal(err)
		}
		if err := store.Activate(ctx, c, "post_"+id); err != nil {
			t.Fatal(err)
		}
	}
	seed("live", now.Add(time.Hour), 0, 5)
	seed("expired", now.Add(-time.Minute), 0, 5)
	seed("exhausted", now.Add(time.Hour), 5, 5)
	client.ZAdd(ctx, keys.ActiveIndex(), &redis.Z{Score: 1, Member: "ghost"})

	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	active, _ := store.IDs(ctx, keys.ActiveIndex(), 0)
	if len(active) != 1 || active[0] != "live" {
		t.Errorf("active = %v", active)
	}
	community, _ := store.IDs(ctx, keys.CommunityIndex("typeers"), 0)
	if len(community) != 1 || community[0] != "live" {
		t.Errorf("community = %v", community)
	}

	// records stay readable for creators
	if _, err := store.Get(ctx, "expired"); err != nil {
		t.Errorf("expired campaign record: %v", err)
	}
}

func TestSweepSkipsWhileLocked(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sealer, _ := secrets.NewSealer(secrets.Config{Key: "k"})
	lockManager := locks.NewLockManager(client)
	s := NewScheduler(campaigns.NewStore(client, sealer), lockManager, "")

	held, err := lockManager.Acquire(ctx, locks.ResourceSweep, "active", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release(ctx)

	if _, err := s.Sweep(ctx); !errors.Is(err, locks.ErrLockNotAcquired) {
		t.Errorf("err = %v, want ErrLockNotAcquired", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil, nil, "every sometimes")
	if err := s.Start(); err == nil {
		s.Stop()
		t.Error("bad schedule accepted")
	}
}

func TestPruneAudit(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&audit.AuditLog{}); err != nil {
		t.Fatal(err)
	}
	auditLogger := audit.NewLogger(db)
	defer auditLogger.Stop()

	old := &audit.AuditLog{
		ID:        uuid.New(),
		UserID:    "u1",
		Action:    audit.ActionClaim,
		Result:    audit.ResultSuccess,
		CreatedAt: time.Now().AddDate(0, 0, -40),
	}
	if err := db.Create(old).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := auditLogger.LogSync(ctx, &audit.LogEntry{UserID: "u1", Action: audit.ActionRedeem, Result: audit.ResultSuccess}); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(nil, locks.NewLockManager(client), "").WithAuditRetention(auditLogger, 30)
	deleted, err := s.PruneAudit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	var remaining int64
	db.Model(&audit.AuditLog{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
}
