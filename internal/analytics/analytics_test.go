package analytics

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/models"
)

func newTestCounters(t *testing.T) (*Counters, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCounters(client), client
}

func testCampaign() *models.Campaign {
	return &models.Campaign{
		ID:        "gc_test",
		BrandLink: "https://brand.example/shop?ref=1",
		RewardWords: map[int]models.Reward{
			0: {ID: "rw_a", Type: models.RewardTypeCoupon, AffiliateLink: "https://aff.example/p"},
			2: {ID: "rw_b", Type: models.RewardTypeSecret},
		},
	}
}

func TestInitDoesNotReset(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCounters(t)

	if err := c.Init(ctx, "gc1"); err != nil {
		t.Fatal(err)
	}
	c.IncrPlays(ctx, "gc1")
	c.Init(ctx, "gc1")

	a, _ := c.Get(ctx, "gc1")
	if a.Plays != 1 {
		t.Errorf("plays = %d, want 1", a.Plays)
	}
}

func TestClaimRate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCounters(t)

	for i := 0; i < 4; i++ {
		c.IncrPlays(ctx, "gc1")
	}
	c.IncrClaims(ctx, "gc1")

	a, err := c.Get(ctx, "gc1")
	if err != nil {
		t.Fatal(err)
	}
	if a.ClaimRate != 0.25 {
		t.Errorf("claim rate = %v, want 0.25", a.ClaimRate)
	}

	empty, _ := c.Get(ctx, "none")
	if empty.ClaimRate != 0 || empty.Plays != 0 {
		t.Errorf("empty analytics = %+v", empty)
	}
}

func TestRecordCompletion(t *testing.T) {
	ctx := context.Background()
	c, client := newTestCounters(t)

	ok, err := c.RecordCompletion(ctx, "gc1", "u1", time.Hour)
	if err != nil || ok {
		t.Fatalf("completion without play = %v, %v", ok, err)
	}

	client.Set(ctx, keys.Played("gc1", "u1"), "1", 0)

	if ok, _ := c.RecordCompletion(ctx, "gc1", "u1", time.Hour); !ok {
		t.Fatal("first completion not recorded")
	}
	if ok, _ := c.RecordCompletion(ctx, "gc1", "u1", time.Hour); ok {
		t.Fatal("second completion recorded")
	}

	a, _ := c.Get(ctx, "gc1")
	if a.Completions != 1 {
		t.Errorf("completions = %d, want 1", a.Completions)
	}
}

func TestAttributionApply(t *testing.T) {
	attr := Attribution{Source: "typeers"}

	got := attr.Apply("https://brand.example/shop?ref=1", "gc_1", "rw_9")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	want := map[string]string{
		"ref":          "1",
		"utm_source":   "typeers",
		"utm_medium":   "golden_challenge",
		"utm_campaign": "gc_1",
		"utm_content":  "rw_9",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}

	if got := attr.Apply("not a url", "gc_1", ""); got != "not a url" {
		t.Errorf("relative link rewritten: %q", got)
	}
	brand, _ := url.Parse(attr.Apply("https://b.example", "gc_1", ""))
	if brand.Query().Has("utm_content") {
		t.Error("brand link carries utm_content")
	}
}

func TestTrackBrandClick(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCounters(t)
	camp := testCampaign()

	dest, err := c.TrackBrandClick(ctx, Attribution{Source: "typeers"}, camp)
	if err != nil {
		t.Fatal(err)
	}
	if u, _ := url.Parse(dest); u.Query().Get("utm_campaign") != "gc_test" {
		t.Errorf("dest = %q", dest)
	}

	links, _ := c.Links(ctx, camp)
	if links.BrandLinkClicks != 1 {
		t.Errorf("brand clicks = %d, want 1", links.BrandLinkClicks)
	}

	camp.BrandLink = ""
	if _, err := c.TrackBrandClick(ctx, Attribution{}, camp); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTrackAffiliateClick(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCounters(t)
	camp := testCampaign()
	attr := Attribution{Source: "typeers"}

	for i := 0; i < 2; i++ {
		if _, err := c.TrackAffiliateClick(ctx, attr, camp, "rw_a"); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := c.TrackAffiliateClick(ctx, attr, camp, "rw_b"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("reward without link: err = %v", err)
	}
	if _, err := c.TrackAffiliateClick(ctx, attr, camp, "rw_missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown reward: err = %v", err)
	}

	links, _ := c.Links(ctx, camp)
	if links.AffiliateClicks["rw_a"] != 2 {
		t.Errorf("affiliate clicks = %d, want 2", links.AffiliateClicks["rw_a"])
	}
	if links.BrandLinkClicks != 2 {
		t.Errorf("total link clicks = %d, want 2", links.BrandLinkClicks)
	}
	if _, ok := links.AffiliateClicks["rw_b"]; ok {
		t.Error("reward without affiliate link listed")
	}
}
