package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	responses map[string]string // issuer substring -> raw model output
	err       error
	calls     int
}

func (p *fakeProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	for needle, out := range p.responses {
		if needle != "" && strings.Contains(prompt, needle) {
			return out, nil
		}
	}
	return `{"ticker": "UNKNOWN"}`, nil
}

func TestParseTickerResponse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"clean json", `{"ticker": "AAPL"}`, "AAPL", false},
		{"unknown sentinel", `{"ticker": "UNKNOWN"}`, "", false},
		{"empty", `{"ticker": ""}`, "", false},
		{"lowercase normalized", `{"ticker": "msft"}`, "MSFT", false},
		{"share class suffix", `{"ticker": "BRK.B"}`, "BRK.B", false},
		{"truncated json repaired", `{"ticker": "GOOGL"`, "GOOGL", false},
		{"bare symbol", `NVDA`, "NVDA", false},
		{"too long rejected", `{"ticker": "TOOLONGSYM"}`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTickerResponse(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTickerResponseNeverAcceptsProse(t *testing.T) {
	// Free-text answers must not leak through as tickers, whichever parsing
	// tier ends up handling them.
	got, _ := parseTickerResponse("The ticker is probably AAPL")
	assert.Empty(t, got)
}

func TestAIResolverResolveBatch(t *testing.T) {
	p := &fakeProvider{responses: map[string]string{
		"NVIDIA": `{"ticker": "NVDA"}`,
	}}
	r := NewAIResolver(p, zap.NewNop())

	out := r.ResolveBatch(context.Background(), []Request{
		{CUSIP: "67066G104", IssuerName: "NVIDIA CORP"},
		{CUSIP: "000000000", IssuerName: "OBSCURE PRIVATE TRUST"},
	})

	assert.Equal(t, map[string]string{"67066G104": "NVDA"}, out)
	assert.Equal(t, 2, p.calls)
}

func TestAIResolverProviderErrorsAreSkipped(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	r := NewAIResolver(p, zap.NewNop())

	out := r.ResolveBatch(context.Background(), []Request{
		{CUSIP: "67066G104", IssuerName: "NVIDIA CORP"},
	})
	assert.Empty(t, out)
}

func TestAIResolverNilProvider(t *testing.T) {
	r := NewAIResolver(nil, zap.NewNop())
	out := r.ResolveBatch(context.Background(), []Request{{CUSIP: "X", IssuerName: "Y"}})
	assert.Empty(t, out)
}
