package fetcher

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// maxRedirectHops bounds a redirect chain.
const maxRedirectHops = 10

// Tracer follows redirect chains manually by iterating the Fetcher, so
// every hop is recorded and loops are caught.
type Tracer struct {
	fetcher *Fetcher
	logger  *zap.Logger
}

// NewTracer creates a tracer over the given fetcher.
func NewTracer(f *Fetcher, logger *zap.Logger) *Tracer {
	return &Tracer{fetcher: f, logger: logger}
}

// Trace fetches rawURL and walks its redirect chain to the final
// response. The chain is bounded to maxRedirectHops entries; a target
// already present in the chain stops the walk with LoopDetected set.
// Elapsed accumulates wall time across every hop. The caller owns the
// per-page deadline via ctx.
func (t *Tracer) Trace(ctx context.Context, rawURL string) (*TraceResult, error) {
	result := &TraceResult{
		Chain: make([]RedirectHop, 0, 1),
	}

	currentURL := rawURL
	seen := map[string]struct{}{rawURL: {}}

	for hop := 0; hop < maxRedirectHops; hop++ {
		resp, elapsed, err := t.fetcher.Fetch(ctx, currentURL)
		result.Elapsed += elapsed
		if err != nil {
			return nil, err
		}

		result.Chain = append(result.Chain, RedirectHop{URL: currentURL, StatusCode: resp.StatusCode})
		result.Response = resp
		result.FinalURL = currentURL

		if !resp.IsRedirect() {
			return result, nil
		}

		location := resp.Location()
		if location == "" {
			// A 3xx without Location is terminal.
			return result, nil
		}

		target, err := resolveLocation(currentURL, location)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
		}

		if !result.HadRedirect {
			result.HadRedirect = true
			result.RedirectionType = resp.StatusCode
		}
		result.RedirectCount++

		if _, ok := seen[target]; ok {
			t.logger.Warn("redirect loop detected",
				zap.String("start", rawURL),
				zap.String("target", target),
				zap.Int("hops", len(result.Chain)))
			result.LoopDetected = true
			return result, nil
		}
		seen[target] = struct{}{}
		currentURL = target
	}

	t.logger.Warn("redirect chain exceeded hop limit",
		zap.String("start", rawURL),
		zap.Int("hops", maxRedirectHops))
	return result, nil
}

// resolveLocation resolves a Location header against the URL that
// produced it.
func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}
