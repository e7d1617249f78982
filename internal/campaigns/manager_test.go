package campaigns

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/typeers/backend/internal/analytics"
	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/ledger"
	"github.com/typeers/backend/internal/locks"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/platform"
	"github.com/typeers/backend/internal/secrets"
)

type harness struct {
	client   *redis.Client
	ledger   *ledger.Ledger
	store    *Store
	platform *platform.LocalPlatform
	counters *analytics.Counters
	manager  *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sealer, err := secrets.NewSealer(secrets.Config{Key: "test-key"})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		client:   client,
		ledger:   ledger.New(client),
		store:    NewStore(client, sealer),
		platform: platform.NewLocalPlatform(),
		counters: analytics.NewCounters(client),
	}
	h.manager = NewManager(h.store, h.ledger, h.platform, h.counters, locks.NewLockManager(client), nil)
	return h
}

func (h *harness) fund(t *testing.T, user string, tier models.Tier, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		order := user + "-" + string(tier) + "-" + string(rune('a'+i))
		if ok, err := h.ledger.Credit(context.Background(), user, tier, order); err != nil || !ok {
			t.Fatalf("fund: %v %v", ok, err)
		}
	}
}

func (h *harness) balance(t *testing.T, user string, tier models.Tier) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return b[tier]
}

func validRequest(tier models.Tier) SubmitRequest {
	return SubmitRequest{
		Title:     "Summer Sale",
		BrandName: "Acme",
		Message:   "Type these words quickly to find the hidden summer prizes today",
		Rewards: []RewardInput{
			{WordIndex: 1, Type: models.RewardTypeCoupon, Value: "SUMMER10", Description: "10% off"},
		},
		Tier:         tier,
		MaxClaims:    50,
		DurationDays: 3,
		CommunityID:  "typeers",
	}
}

type failingPlatform struct{}

func (failingPlatform) CreatePost(ctx context.Context, communityID, title string) (string, error) {
	return "", errors.New("platform down")
}

func (failingPlatform) PostComment(ctx context.Context, postID, text string) error {
	return errors.New("platform down")
}

type recordingNotifier struct{ approved []string }

func (n *recordingNotifier) CampaignApproved(c *models.Campaign) { n.approved = append(n.approved, c.ID) }

func TestSubmitSpendsExactlyOneToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)

	c, err := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if c.Status != models.StatusPending || c.ClaimCount != 0 {
		t.Errorf("campaign = %+v", c)
	}
	if got := h.balance(t, "creator", models.TierStandard); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}

	if _, err := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard)); !errors.Is(err, models.ErrInsufficientTokens) {
		t.Errorf("second submit err = %v, want ErrInsufficientTokens", err)
	}
}

func TestSubmitDropsRewardsBeyondTierLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)

	req := validRequest(models.TierStandard)
	req.Rewards = []RewardInput{
		{WordIndex: 0, Type: models.RewardTypeCoupon, Value: "A", Description: "a"},
		{WordIndex: 1, Type: models.RewardTypeSecret, Value: "B", Description: "b"},
		{WordIndex: 2, Type: models.RewardTypeGiveaway, Value: "C", Description: "c"},
		{WordIndex: 3, Type: models.RewardTypeMessage, Value: "D", Description: "d"},
	}

	c, err := h.manager.Submit(ctx, "creator", req)
	if err != nil {
		t.Fatal(err)
	}

	stored, err := h.store.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.RewardWords) != 3 {
		t.Fatalf("stored rewards = %d, want 3", len(stored.RewardWords))
	}
	if _, ok := stored.RewardWords[3]; ok {
		t.Error("fourth reward was kept")
	}
	if stored.RewardWords[1].Value != "B" {
		t.Errorf("reward value = %q, want B", stored.RewardWords[1].Value)
	}
}

func TestSubmitFiltersInvalidRewards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierPremium, 1)

	req := validRequest(models.TierPremium)
	req.Rewards = []RewardInput{
		{WordIndex: -1, Type: models.RewardTypeCoupon, Value: "A", Description: "a"},
		{WordIndex: 99, Type: models.RewardTypeCoupon, Value: "A", Description: "a"},
		{WordIndex: 0, Type: models.RewardTypeCoupon, Value: "  ", Description: "a"},
		{WordIndex: 0, Type: models.RewardTypeCoupon, Value: "A", Description: ""},
		{WordIndex: 0, Type: models.RewardType("cash"), Value: "A", Description: "a"},
		{WordIndex: 2, Type: models.RewardTypeCoupon, Value: "first", Description: "kept"},
		{WordIndex: 2, Type: models.RewardTypeCoupon, Value: "second", Description: "dup"},
	}

	c, err := h.manager.Submit(ctx, "creator", req)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.RewardWords) != 1 || c.RewardWords[2].Value != "first" {
		t.Errorf("rewards = %+v", c.RewardWords)
	}
}

func TestSubmitCompensatesFailedValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SubmitRequest)
		wantErr error
	}{
		{"too few words", func(r *SubmitRequest) { r.Message = "hi there" }, models.ErrInvalidContent},
		{"no surviving rewards", func(r *SubmitRequest) { r.Rewards = []RewardInput{{WordIndex: 50, Type: models.RewardTypeCoupon, Value: "x", Description: "y"}} }, models.ErrNoRewards},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.fund(t, "creator", models.TierStandard, 1)

			req := validRequest(models.TierStandard)
			tt.mutate(&req)

			if _, err := h.manager.Submit(ctx, "creator", req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := h.balance(t, "creator", models.TierStandard); got != 1 {
				t.Errorf("balance after failed submit = %d, want 1", got)
			}
			if n, _ := h.client.ZCard(ctx, keys.PendingIndex()).Result(); n != 0 {
				t.Errorf("pending index has %d entries", n)
			}
		})
	}
}

func TestSubmitUnknownTierSpendsNothing(t *testing.T) {
	h := newHarness(t)
	req := validRequest(models.Tier("legendary"))

	if _, err := h.manager.Submit(context.Background(), "creator", req); !errors.Is(err, models.ErrInvalidContent) {
		t.Errorf("err = %v, want ErrInvalidContent", err)
	}
}

func TestSubmitRequiresUser(t *testing.T) {
	h := newHarness(t)
	if _, err := h.manager.Submit(context.Background(), "", validRequest(models.TierStandard)); !errors.Is(err, models.ErrNotAuthenticated) {
		t.Errorf("err = %v", err)
	}
}

func TestSubmitClampsToTier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)
	h.fund(t, "creator", models.TierPremium, 1)
	h.fund(t, "creator", models.TierTop, 1)

	long := strings.Repeat("word ", 40)
	base := func(tier models.Tier) SubmitRequest {
		req := validRequest(tier)
		req.Title = strings.Repeat("T", 120)
		req.BrandName = strings.Repeat("B", 60)
		req.Message = long
		req.MaxClaims = 1_000_000
		req.DurationDays = 0
		req.BrandLink = "https://brand.example"
		req.Rewards[0].AffiliateLink = "https://aff.example"
		return req
	}

	std, err := h.manager.Submit(ctx, "creator", base(models.TierStandard))
	if err != nil {
		t.Fatal(err)
	}
	if len(std.Words) != 15 || std.MaxClaims != 100 {
		t.Errorf("standard words=%d claims=%d", len(std.Words), std.MaxClaims)
	}
	if std.BrandLink != "" || std.RewardWords[1].AffiliateLink != "" {
		t.Error("standard tier kept links")
	}
	if len(std.Title) != 80 || len(std.BrandName) != 40 {
		t.Errorf("title=%d brand=%d", len(std.Title), len(std.BrandName))
	}
	if d := std.ExpiresAt.Sub(std.CreatedAt); d != 24*time.Hour {
		t.Errorf("duration = %v, want 24h", d)
	}

	prem, _ := h.manager.Submit(ctx, "creator", base(models.TierPremium))
	if prem.BrandLink == "" || prem.RewardWords[1].AffiliateLink != "" {
		t.Errorf("premium brand=%q affiliate=%q", prem.BrandLink, prem.RewardWords[1].AffiliateLink)
	}

	top, _ := h.manager.Submit(ctx, "creator", base(models.TierTop))
	if len(top.Words) != 30 || top.MaxClaims != 2000 {
		t.Errorf("top words=%d claims=%d", len(top.Words), top.MaxClaims)
	}
	if top.RewardWords[1].AffiliateLink != "https://aff.example" {
		t.Error("top tier dropped affiliate link")
	}
}

func TestStoreSealsRewardValues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)

	c, _ := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard))

	doc, _ := h.client.HGet(ctx, keys.Campaign(c.ID), fieldDoc).Result()
	if strings.Contains(doc, "SUMMER10") {
		t.Error("reward value stored in plaintext")
	}
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	notifier := &recordingNotifier{}
	h.manager.SetNotifier(notifier)
	h.fund(t, "creator", models.TierStandard, 1)

	c, _ := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard))

	approved, err := h.manager.Approve(ctx, c.ID, "mod")
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != models.StatusActive || approved.ExternalPostID == "" {
		t.Fatalf("approved = %+v", approved)
	}
	if !strings.Contains(h.platform.Title(approved.ExternalPostID), "Summer Sale by Acme") {
		t.Errorf("post title = %q", h.platform.Title(approved.ExternalPostID))
	}
	if len(h.platform.Comments(approved.ExternalPostID)) != 1 {
		t.Error("announcement comment missing")
	}
	if len(notifier.approved) != 1 {
		t.Error("notifier not called")
	}

	stored, _ := h.store.Get(ctx, c.ID)
	if stored.Status != models.StatusActive || stored.ExternalPostID != approved.ExternalPostID {
		t.Errorf("stored = %+v", stored)
	}
	if id, _ := h.store.IDForPost(ctx, approved.ExternalPostID); id != c.ID {
		t.Errorf("post index = %q", id)
	}
	active, _ := h.store.IDs(ctx, keys.ActiveIndex(), 0)
	community, _ := h.store.IDs(ctx, keys.CommunityIndex("typeers"), 0)
	pending, _ := h.store.IDs(ctx, keys.PendingIndex(), 0)
	if len(active) != 1 || len(community) != 1 || len(pending) != 0 {
		t.Errorf("indices active=%v community=%v pending=%v", active, community, pending)
	}
	if fields, _ := h.client.HGetAll(ctx, keys.Analytics(c.ID)).Result(); fields["plays"] != "0" {
		t.Errorf("analytics = %v", fields)
	}
	if !h.manager.IsAvailable(stored) {
		t.Error("approved campaign not available")
	}

	if _, err := h.manager.Approve(ctx, c.ID, "mod"); !errors.Is(err, models.ErrWrongState) {
		t.Errorf("second approve err = %v", err)
	}
	if err := h.manager.Reject(ctx, c.ID, "mod"); !errors.Is(err, models.ErrWrongState) {
		t.Errorf("reject after approve err = %v", err)
	}
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)

	c, _ := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard))

	if err := h.manager.Reject(ctx, c.ID, "mod"); err != nil {
		t.Fatal(err)
	}
	stored, _ := h.store.Get(ctx, c.ID)
	if stored.Status != models.StatusRejected {
		t.Errorf("status = %s", stored.Status)
	}
	if _, err := h.manager.Approve(ctx, c.ID, "mod"); !errors.Is(err, models.ErrWrongState) {
		t.Errorf("approve after reject err = %v", err)
	}
}

func TestModerationOfMissingCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.Approve(ctx, "gc_missing", "mod"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("approve err = %v", err)
	}
	if err := h.manager.Reject(ctx, "gc_missing", "mod"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("reject err = %v", err)
	}
}

func TestApproveWithPlatformDownStaysPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "creator", models.TierStandard, 1)
	c, _ := h.manager.Submit(ctx, "creator", validRequest(models.TierStandard))

	h.manager.platform = failingPlatform{}
	if _, err := h.manager.Approve(ctx, c.ID, "mod"); err == nil {
		t.Fatal("approve succeeded without a post")
	}

	stored, _ := h.store.Get(ctx, c.ID)
	if stored.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
}

func TestNewCampaignID(t *testing.T) {
	id := newCampaignID("Summer Sale 2024!")
	if !strings.HasPrefix(id, "gc_summer-sale-2024_") {
		t.Errorf("id = %q", id)
	}
	if id := newCampaignID("!!!"); !strings.HasPrefix(id, "gc_") || strings.Contains(id, "__") {
		t.Errorf("id = %q", id)
	}
}
