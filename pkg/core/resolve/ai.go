package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/llm"
	"holdings13f/pkg/core/utils"
)

const (
	// Only the first aiMaxItems unresolved holdings go to the model; past
	// that point the marginal hit rate does not justify the cost.
	aiMaxItems     = 100
	aiItemTimeout  = 10 * time.Second
	aiInterItemGap = 200 * time.Millisecond

	aiSystemPrompt = "You map US security issuer names to stock tickers. " +
		"Respond with JSON only: {\"ticker\": \"<SYMBOL>\"}. " +
		"If you are not certain of the listed ticker, respond {\"ticker\": \"UNKNOWN\"}."
)

// tickerRe is the strict output contract: 1-6 capitals with an optional
// share-class suffix. Anything else from the model is discarded.
var tickerRe = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z])?$`)

// AIResolver is the last-resort single-completion fallback.
type AIResolver struct {
	provider llm.Provider
	log      *zap.Logger
}

// NewAIResolver builds the fallback on any llm.Provider.
func NewAIResolver(provider llm.Provider, log *zap.Logger) *AIResolver {
	return &AIResolver{provider: provider, log: log.Named("ai-fallback")}
}

func (r *AIResolver) Name() string { return "ai-fallback" }

// ResolveBatch asks the model for one ticker at a time, capped at aiMaxItems
// items, each call raced against a hard timeout.
func (r *AIResolver) ResolveBatch(ctx context.Context, items []Request) map[string]string {
	out := make(map[string]string)
	if r.provider == nil {
		return out
	}

	capped := items
	if len(capped) > aiMaxItems {
		capped = capped[:aiMaxItems]
	}

	for i, item := range capped {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(aiInterItemGap):
			}
		}

		ticker, err := r.resolveOne(ctx, item.IssuerName)
		if err != nil {
			r.log.Debug("ai resolution failed", zap.String("issuer", item.IssuerName), zap.Error(err))
			continue
		}
		if ticker != "" {
			out[item.CUSIP] = ticker
		}
	}

	r.log.Info("ai fallback pass complete",
		zap.Int("attempted", len(capped)),
		zap.Int("capped_out", len(items)-len(capped)),
		zap.Int("resolved", len(out)),
	)
	return out
}

func (r *AIResolver) resolveOne(ctx context.Context, issuerName string) (string, error) {
	prompt := fmt.Sprintf("Issuer name from a 13F filing: %q. What is its primary US stock ticker?", issuerName)

	type completion struct {
		text string
		err  error
	}
	done := make(chan completion, 1)

	callCtx, cancel := context.WithTimeout(ctx, aiItemTimeout)
	defer cancel()

	go func() {
		text, err := r.provider.GenerateResponse(callCtx, prompt, aiSystemPrompt, map[string]interface{}{
			"response_format": map[string]interface{}{"type": "json_object"},
		})
		done <- completion{text, err}
	}()

	// Hard race: some SDK paths ignore context cancellation mid-call.
	select {
	case <-callCtx.Done():
		return "", fmt.Errorf("ai call timed out after %s", aiItemTimeout)
	case c := <-done:
		if c.err != nil {
			return "", c.err
		}
		return parseTickerResponse(c.text)
	}
}

func parseTickerResponse(raw string) (string, error) {
	var resp struct {
		Ticker string `json:"ticker"`
	}
	if err := utils.SmartParse(raw, &resp); err != nil {
		// Some models return the bare symbol despite the JSON instruction.
		resp.Ticker = strings.TrimSpace(raw)
	}

	ticker := strings.ToUpper(strings.TrimSpace(resp.Ticker))
	if ticker == "" || ticker == "UNKNOWN" {
		return "", nil
	}
	if !tickerRe.MatchString(ticker) {
		return "", fmt.Errorf("model output %q violates ticker format", ticker)
	}
	return ticker, nil
}
