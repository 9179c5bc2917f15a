package affiliate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

type fakeClient struct {
	mu        sync.Mutex
	redirects map[string]string
	resolves  int
	calls     int
	response  []byte
	status    int
	err       error
}

func (f *fakeClient) Start() error    { return nil }
func (f *fakeClient) Stop() error     { return nil }
func (f *fakeClient) IsRunning() bool { return true }

func (f *fakeClient) Call(_ context.Context, _, _ string, _ interface{}, _ *types.CallOptions) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return f.response, f.status, f.err
}

func (f *fakeClient) Resolve(_ context.Context, url string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolves++
	if f.err != nil {
		return "", f.err
	}
	if target, ok := f.redirects[url]; ok {
		return target, nil
	}
	return url, nil
}

func newTestRewriter(t *testing.T, config *types.AffiliateConfig, client types.ClientManager) *Rewriter {
	t.Helper()

	rewriter, err := NewRewriter(config, client, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewRewriter: %v", err)
	}
	t.Cleanup(rewriter.Close)

	return rewriter
}

func TestRewriteProductAndShortLinks(t *testing.T) {
	client := &fakeClient{redirects: map[string]string{
		"https://shp.ee/abc": "https://shopee.vn/product/7/8?sp_atk=1",
	}}

	rewriter := newTestRewriter(t, &types.AffiliateConfig{AffiliateID: "aff-1", UTMSource: "sai-cache"}, client)

	text := "Buy https://shopee.vn/product/1/2 or https://shp.ee/abc, not https://lazada.vn/x"

	result, err := rewriter.Rewrite(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	if len(result.Links) != 2 {
		t.Fatalf("expected 2 shopee links, got %+v", result.Links)
	}

	product := "https://shopee.vn/product/1/2?af_id=aff-1&utm_source=sai-cache"
	expanded := "https://shopee.vn/product/7/8?af_id=aff-1&sp_atk=1&utm_source=sai-cache"

	want := "Buy " + product + " or " + expanded + ", not https://lazada.vn/x"
	if result.Text != want {
		t.Fatalf("unexpected text:\n got %s\nwant %s", result.Text, want)
	}

	if _, err := rewriter.Rewrite(context.Background(), text, nil); err != nil {
		t.Fatalf("second Rewrite: %v", err)
	}
	if client.resolves != 1 {
		t.Fatalf("expected the expanded link to be memoized, got %d resolves", client.resolves)
	}
	if stats := rewriter.Stats(); stats.Hits != 2 || stats.Size != 2 {
		t.Fatalf("unexpected cache stats: %+v", stats)
	}
}

func TestRewriteWithTemplate(t *testing.T) {
	rewriter := newTestRewriter(t, &types.AffiliateConfig{AffiliateID: "default"}, &fakeClient{})

	template := &Template{ID: "t1", AffiliateID: "aff-2", SubID: "tg", Body: "🔥 Hot deal\n{{text}}\n#ad"}

	result, err := rewriter.Rewrite(context.Background(), "https://shopee.vn/item", template)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	want := "🔥 Hot deal\nhttps://shopee.vn/item?af_id=aff-2&sub_id=tg\n#ad"
	if result.Text != want {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestRewriteKeepsFailedLinks(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	rewriter := newTestRewriter(t, &types.AffiliateConfig{AffiliateID: "aff"}, client)

	text := "see https://s.shopee.vn/Zz"

	result, err := rewriter.Rewrite(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	if result.Text != text {
		t.Fatalf("expected text unchanged, got %q", result.Text)
	}
	if len(result.Links) != 1 || result.Links[0].Error == "" || result.Links[0].Affiliate != "https://s.shopee.vn/Zz" {
		t.Fatalf("expected failed link report, got %+v", result.Links)
	}
	if rewriter.Stats().Size != 0 {
		t.Fatal("failed conversions must not be cached")
	}
}

func TestRewriteWithoutAffiliateID(t *testing.T) {
	rewriter := newTestRewriter(t, &types.AffiliateConfig{}, &fakeClient{})

	result, err := rewriter.Rewrite(context.Background(), "https://shopee.vn/item", nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(result.Links[0].Error, types.ErrLinkConvertFailed.Error()) {
		t.Fatalf("expected convert error, got %+v", result.Links[0])
	}
}

func TestRewriteRemoteConverter(t *testing.T) {
	client := &fakeClient{status: 200, response: []byte(`{"url":"https://s.shopee.vn/aff123"}`)}
	rewriter := newTestRewriter(t, &types.AffiliateConfig{
		AffiliateID:  "aff",
		ConverterURL: "http://converter.local/convert",
	}, client)

	result, err := rewriter.Rewrite(context.Background(), "a https://shopee.vn/p b https://shopee.vn/p", nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	if result.Text != "a https://s.shopee.vn/aff123 b https://s.shopee.vn/aff123" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if client.calls != 1 {
		t.Fatalf("expected one converter call for a repeated link, got %d", client.calls)
	}

	client.status = 500
	result, _ = rewriter.Rewrite(context.Background(), "https://shopee.vn/other", nil)
	if result.Links[0].Error == "" {
		t.Fatal("expected converter status error")
	}
}

func TestRender(t *testing.T) {
	if got := Render("header", "body"); got != "header\nbody" {
		t.Fatalf("unexpected render %q", got)
	}
	if got := Render("[{{text}}] [{{text}}]", "x"); got != "[x] [x]" {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestReplaceLinksPrefersLongerLinks(t *testing.T) {
	text := "https://shopee.vn/a?x=1 https://shopee.vn/a"

	got := replaceLinks(text, map[string]string{
		"https://shopee.vn/a":     "SHORT",
		"https://shopee.vn/a?x=1": "LONG",
	})
	if got != "LONG SHORT" {
		t.Fatalf("unexpected replacement %q", got)
	}
}

func TestReplaceLinksKeepsUnconvertedLinkSharingPrefix(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"failed link first", "see https://shopee.vn/a?x=1 and https://shopee.vn/a.", "see https://shopee.vn/a?x=1 and AFF."},
		{"failed link last", "https://shopee.vn/a, https://shopee.vn/a?x=1", "AFF, https://shopee.vn/a?x=1"},
		{"repeated link", "https://shopee.vn/a https://shopee.vn/a", "AFF AFF"},
		{"no links", "plain text", "plain text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := replaceLinks(tc.text, map[string]string{"https://shopee.vn/a": "AFF"})
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
