package affiliate

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const (
	TextPlaceholder = "{{text}}"

	maxRedirects = 5
)

type Link struct {
	Original  string `json:"original"`
	Affiliate string `json:"affiliate"`
	Error     string `json:"error,omitempty"`
}

type Result struct {
	Text  string `json:"text"`
	Links []Link `json:"links"`
}

type converterRequest struct {
	URL         string `json:"url"`
	AffiliateID string `json:"affiliate_id"`
	SubID       string `json:"sub_id,omitempty"`
}

type converterResponse struct {
	URL string `json:"url"`
}

// Rewriter replaces Shopee links in a message with affiliate links. Each
// conversion is memoized per affiliate id, sub id and link.
type Rewriter struct {
	config  *types.AffiliateConfig
	client  types.ClientManager
	logger  types.Logger
	metrics types.MetricsManager
	links   *cache.Loader[string]
}

func NewRewriter(config *types.AffiliateConfig, client types.ClientManager, logger types.Logger, metrics types.MetricsManager) (*Rewriter, error) {
	if config == nil {
		config = &types.AffiliateConfig{}
	}

	store, err := cache.New[string](cache.Config{
		MaxSize:    config.CacheSize,
		DefaultTTL: config.LinkTTL,
		Strategy:   cache.StrategyLRU,
	}, cache.WithLogger(logger), cache.WithName("affiliate-links"))
	if err != nil {
		return nil, err
	}

	return &Rewriter{
		config:  config,
		client:  client,
		logger:  logger,
		metrics: metrics,
		links:   cache.NewLoader(store),
	}, nil
}

// Rewrite converts every Shopee link in text. A link that fails to convert
// stays as it was and is reported in Result.Links. When template carries a
// body the rewritten text is rendered into it.
func (r *Rewriter) Rewrite(ctx context.Context, text string, template *Template) (*Result, error) {
	affiliateID, subID := r.config.AffiliateID, ""
	if template != nil {
		if template.AffiliateID != "" {
			affiliateID = template.AffiliateID
		}
		subID = template.SubID
	}

	result := &Result{Links: []Link{}}
	seen := make(map[string]struct{})
	converted := make(map[string]string)

	for _, original := range FindLinks(text) {
		if _, ok := seen[original]; ok || !IsShopee(original) {
			continue
		}
		seen[original] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		affiliateURL, err := r.links.Load(ctx, cacheKey(affiliateID, subID, original), func(ctx context.Context) (string, error) {
			return r.convert(ctx, original, affiliateID, subID)
		}, 0)

		link := Link{Original: original, Affiliate: affiliateURL}
		if err != nil {
			r.logger.Warn("Failed to convert link", zap.String("link", original), zap.Error(err))
			r.count("failed")

			link.Affiliate = original
			link.Error = err.Error()
		} else {
			r.count("converted")
			converted[original] = affiliateURL
		}

		result.Links = append(result.Links, link)
	}

	result.Text = replaceLinks(text, converted)

	if template != nil && template.Body != "" {
		result.Text = Render(template.Body, result.Text)
	}

	return result, nil
}

// Render puts text in place of every {{text}} in body. A body without the
// placeholder is followed by the text on a new line.
func Render(body, text string) string {
	if !strings.Contains(body, TextPlaceholder) {
		return body + "\n" + text
	}
	return strings.ReplaceAll(body, TextPlaceholder, text)
}

// Close releases the link cache.
func (r *Rewriter) Close() {
	r.links.Cache().Dispose()
}

func (r *Rewriter) Stats() cache.Stats {
	return r.links.Cache().Stats()
}

func (r *Rewriter) convert(ctx context.Context, link, affiliateID, subID string) (string, error) {
	if affiliateID == "" {
		return "", types.Errorf(types.ErrLinkConvertFailed, "affiliate id is not configured")
	}

	if r.config.ConverterURL != "" {
		return r.convertRemote(ctx, link, affiliateID, subID)
	}

	target := link
	if IsShortLink(link) {
		resolved, err := r.client.Resolve(ctx, link, maxRedirects)
		if err != nil {
			return "", types.Errorf(types.ErrLinkConvertFailed, "expand %s: %v", link, err)
		}

		if !IsShopee(resolved) || IsShortLink(resolved) {
			return "", types.Errorf(types.ErrLinkConvertFailed, "%s expands to %s", link, resolved)
		}
		target = resolved
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", types.Errorf(types.ErrLinkConvertFailed, "parse %s: %v", target, err)
	}

	query := parsed.Query()
	query.Set("af_id", affiliateID)
	if subID != "" {
		query.Set("sub_id", subID)
	}
	if r.config.UTMSource != "" {
		query.Set("utm_source", r.config.UTMSource)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func (r *Rewriter) convertRemote(ctx context.Context, link, affiliateID, subID string) (string, error) {
	body, status, err := r.client.Call(ctx, fasthttp.MethodPost, r.config.ConverterURL, converterRequest{
		URL:         link,
		AffiliateID: affiliateID,
		SubID:       subID,
	}, &types.CallOptions{Timeout: 10 * time.Second})
	if err != nil {
		return "", types.Errorf(types.ErrLinkConvertFailed, "converter: %v", err)
	}

	if status != fasthttp.StatusOK {
		return "", types.Errorf(types.ErrLinkConvertFailed, "converter returned status %d", status)
	}

	var response converterResponse
	if err := utils.Unmarshal(body, &response); err != nil || response.URL == "" {
		return "", types.Errorf(types.ErrLinkConvertFailed, "converter returned an invalid body")
	}

	return response.URL, nil
}

func (r *Rewriter) count(result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Counter("affiliate_links_total", map[string]string{"result": result}).Inc()
}

// replaceLinks rewrites each link where it occurs in text. Only spans whose
// whole link was converted change, so a failed link that merely starts with
// a converted one stays intact.
func replaceLinks(text string, converted map[string]string) string {
	if len(converted) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	last := 0
	for _, span := range linkPattern.FindAllStringIndex(text, -1) {
		link := strings.TrimRight(text[span[0]:span[1]], trailingMarks)

		replacement, exists := converted[link]
		if !exists {
			continue
		}

		b.WriteString(text[last:span[0]])
		b.WriteString(replacement)
		last = span[0] + len(link)
	}
	b.WriteString(text[last:])

	return b.String()
}

func cacheKey(affiliateID, subID, link string) string {
	return affiliateID + "|" + subID + "|" + link
}
