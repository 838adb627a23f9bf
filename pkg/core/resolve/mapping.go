package resolve

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/fetch"
)

const (
	openFIGIMappingURL = "https://api.openfigi.com/v3/mapping"

	// OpenFIGI caps unauthenticated mapping jobs; batches stay at 10 and
	// run strictly sequentially with a gap. Parallel batches hang against
	// their rate limiter in practice.
	mappingBatchSize = 10
	interBatchDelay  = 500 * time.Millisecond
)

// MappingAPIResolver resolves CUSIPs to tickers through the OpenFIGI
// mapping API.
type MappingAPIResolver struct {
	client *fetch.Client
	apiKey string
	url    string
	log    *zap.Logger
}

// NewMappingAPIResolver builds the resolver. apiKey may be empty; OpenFIGI
// then applies its anonymous rate limits.
func NewMappingAPIResolver(client *fetch.Client, apiKey string, log *zap.Logger) *MappingAPIResolver {
	return &MappingAPIResolver{
		client: client,
		apiKey: apiKey,
		url:    openFIGIMappingURL,
		log:    log.Named("mapping-api"),
	}
}

func (r *MappingAPIResolver) Name() string { return "mapping-api" }

type figiJob struct {
	IDType   string `json:"idType"`
	IDValue  string `json:"idValue"`
	ExchCode string `json:"exchCode,omitempty"`
}

type figiResult struct {
	Data []struct {
		Ticker       string `json:"ticker"`
		ExchCode     string `json:"exchCode"`
		SecurityType string `json:"securityType"`
	} `json:"data"`
	Error string `json:"error"`
}

// ResolveBatch maps CUSIPs in fixed-size batches, sequentially, with an
// inter-batch delay.
func (r *MappingAPIResolver) ResolveBatch(ctx context.Context, items []Request) map[string]string {
	out := make(map[string]string)

	for start := 0; start < len(items); start += mappingBatchSize {
		end := start + mappingBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		if start > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(interBatchDelay):
			}
		}

		if err := r.mapBatch(ctx, batch, out); err != nil {
			r.log.Warn("mapping batch failed", zap.Int("offset", start), zap.Error(err))
			// A failed batch loses only its own items.
		}
	}

	r.log.Info("mapping api pass complete", zap.Int("requested", len(items)), zap.Int("resolved", len(out)))
	return out
}

func (r *MappingAPIResolver) mapBatch(ctx context.Context, batch []Request, out map[string]string) error {
	jobs := make([]figiJob, len(batch))
	for i, item := range batch {
		jobs[i] = figiJob{IDType: "ID_CUSIP", IDValue: item.CUSIP}
	}

	payload, err := json.Marshal(jobs)
	if err != nil {
		return err
	}

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["X-OPENFIGI-APIKEY"] = r.apiKey
	}

	body, err := r.client.PostJSON(ctx, r.url, payload, headers)
	if err != nil {
		return err
	}

	var results []figiResult
	if err := json.Unmarshal(body, &results); err != nil {
		return err
	}

	for i, result := range results {
		if i >= len(batch) || len(result.Data) == 0 {
			continue
		}
		// Prefer a US common-equity listing when the CUSIP maps to
		// several instruments.
		best := result.Data[0].Ticker
		for _, d := range result.Data {
			if d.ExchCode == "US" {
				best = d.Ticker
				break
			}
		}
		if best != "" {
			out[batch[i].CUSIP] = best
		}
	}
	return nil
}
