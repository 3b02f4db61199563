package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pricelens/backend/internal/domain"
)

func testAffiliateProcessor() *AffiliateProcessor {
	p := NewAffiliateProcessor(map[string]domain.AffiliateConfig{
		domain.PlatformAliExpress: {
			Enabled: true,
			Param:   "aff_fcid",
			Value:   "pricelens",
			Extra:   map[string]string{"aff_platform": "portals-tool", "aff_fsk": "pl 1"},
		},
		domain.PlatformTemu: {
			Enabled: true,
			Param:   "_x_ads_channel",
			Value:   "pricelens",
		},
		domain.PlatformDHgate: {
			Enabled: false,
			Param:   "f",
			Value:   "pricelens",
		},
	})
	p.now = func() time.Time { return time.UnixMilli(1780000000000) }
	return p
}

func enabledSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.EnableAffiliate = true
	return s
}

func TestAffiliateProcessor_Rewrite(t *testing.T) {
	p := testAffiliateProcessor()

	tests := []struct {
		name     string
		rawURL   string
		platform string
		want     string
	}{
		{
			name:     "appends params, extras sorted, timestamp last",
			rawURL:   "https://www.aliexpress.com/item/100500.html",
			platform: domain.PlatformAliExpress,
			want:     "https://www.aliexpress.com/item/100500.html?aff_fcid=pricelens&aff_fsk=pl+1&aff_platform=portals-tool&plts=1780000000000",
		},
		{
			name:     "keeps other params verbatim and the fragment",
			rawURL:   "https://www.aliexpress.com/item/1.html?spm=a2g0o%2Fx&sku=12#reviews",
			platform: domain.PlatformAliExpress,
			want:     "https://www.aliexpress.com/item/1.html?spm=a2g0o%2Fx&sku=12&aff_fcid=pricelens&aff_fsk=pl+1&aff_platform=portals-tool&plts=1780000000000#reviews",
		},
		{
			name:     "replaces an existing affiliate param",
			rawURL:   "https://www.temu.com/g-1.html?_x_ads_channel=someone&goods_id=9",
			platform: domain.PlatformTemu,
			want:     "https://www.temu.com/g-1.html?goods_id=9&_x_ads_channel=pricelens&plts=1780000000000",
		},
		{
			name:     "platform with disabled config is unchanged",
			rawURL:   "https://www.dhgate.com/product/1.html",
			platform: domain.PlatformDHgate,
			want:     "https://www.dhgate.com/product/1.html",
		},
		{
			name:     "unknown platform is unchanged",
			rawURL:   "https://shop.example.com/p/1",
			platform: "unknown",
			want:     "https://shop.example.com/p/1",
		},
		{
			name:     "relative URL is unchanged",
			rawURL:   "/item/1.html",
			platform: domain.PlatformAliExpress,
			want:     "/item/1.html",
		},
		{
			name:     "unparsable URL is unchanged",
			rawURL:   "https://%zz/item",
			platform: domain.PlatformAliExpress,
			want:     "https://%zz/item",
		},
		{
			name:     "non-http scheme is unchanged",
			rawURL:   "javascript:alert(1)",
			platform: domain.PlatformAliExpress,
			want:     "javascript:alert(1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Rewrite(tt.rawURL, tt.platform, enabledSettings()))
		})
	}
}

func TestAffiliateProcessor_RewriteDisabledBySettings(t *testing.T) {
	p := testAffiliateProcessor()
	settings := enabledSettings()
	settings.EnableAffiliate = false

	raw := "https://www.aliexpress.com/item/1.html?sku=1"
	assert.Equal(t, raw, p.Rewrite(raw, domain.PlatformAliExpress, settings))
}

func TestAffiliateProcessor_StripInvertsRewrite(t *testing.T) {
	p := testAffiliateProcessor()

	urls := []struct {
		raw      string
		platform string
	}{
		{"https://www.aliexpress.com/item/1.html", domain.PlatformAliExpress},
		{"https://www.aliexpress.com/item/1.html?spm=a%2Fb&sku=12", domain.PlatformAliExpress},
		{"https://www.aliexpress.com/item/1.html?sku=12#reviews", domain.PlatformAliExpress},
		{"https://www.temu.com/g-1.html?goods_id=9", domain.PlatformTemu},
		{"http://www.temu.com/", domain.PlatformTemu},
		{"https://www.aliexpress.com/item/1.html?", domain.PlatformAliExpress},
		{"https://www.aliexpress.com/item/1.html?#x", domain.PlatformAliExpress},
		{"https://www.temu.com/g-1.html?&goods_id=9", domain.PlatformTemu},
	}

	for _, u := range urls {
		t.Run(u.raw, func(t *testing.T) {
			rewritten := p.Rewrite(u.raw, u.platform, enabledSettings())
			assert.NotEqual(t, u.raw, rewritten)
			assert.Equal(t, u.raw, p.Strip(rewritten))
		})
	}
}

func TestAffiliateProcessor_EmptyQueryKeepsItsMark(t *testing.T) {
	p := testAffiliateProcessor()

	rewritten := p.Rewrite("https://www.temu.com/g-1.html?#top", domain.PlatformTemu, enabledSettings())
	assert.Equal(t, "https://www.temu.com/g-1.html?&_x_ads_channel=pricelens&plts=1780000000000#top", rewritten)
	assert.Equal(t, "https://www.temu.com/g-1.html?", p.Strip("https://www.temu.com/g-1.html?"))
}

func TestAffiliateProcessor_StripRemovesParamsOfDisabledPlatforms(t *testing.T) {
	p := testAffiliateProcessor()
	assert.Equal(t,
		"https://www.dhgate.com/product/1.html?id=2",
		p.Strip("https://www.dhgate.com/product/1.html?f=pricelens&id=2&plts=1"),
	)
}

func TestAffiliateProcessor_RewriteCandidates(t *testing.T) {
	p := testAffiliateProcessor()
	in := []domain.SearchCandidate{
		{Platform: domain.PlatformTemu, ProductURL: "https://www.temu.com/g-1.html?_x_ads_channel=pricelens&plts=1"},
	}

	out := p.RewriteCandidates(in, enabledSettings())
	assert.Equal(t, "https://www.temu.com/g-1.html?_x_ads_channel=pricelens&plts=1780000000000", out[0].ProductURL)
	// input untouched
	assert.Equal(t, "https://www.temu.com/g-1.html?_x_ads_channel=pricelens&plts=1", in[0].ProductURL)

	off := enabledSettings()
	off.EnableAffiliate = false
	assert.Equal(t, "https://www.temu.com/g-1.html", p.RewriteCandidates(in, off)[0].ProductURL)
}
