package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/dexmeta/aggregator/internal/apperror"
)

// DefaultTimeout is the adapter request timeout unless a provider
// overrides it.
const DefaultTimeout = 7 * time.Second

// errorRule is one row of an adapter's error-classification table: a
// status code (0 matches any) and a substring to match in the response
// body, mapped to a typed kind.
type errorRule struct {
	Status int // 0 = any
	Substr string
	Kind   apperror.Kind
}

// base is the HTTP adapter base every concrete adapter embeds, modeled on
// the teacher's HTTPDataSource: a shared client, a provider-scoped base
// URL and timeout, and a self-contained error table.
type base struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	errorTable []errorRule
}

func newBase(name, baseURL, apiKey string, client *http.Client, timeout time.Duration, errorTable []errorRule) base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return base{name: name, baseURL: baseURL, apiKey: apiKey, timeout: timeout, httpClient: client, errorTable: errorTable}
}

func (b base) Name() string { return b.name }

// doGet issues a GET request with the adapter's timeout and returns the
// raw body, or a typed apperror classified via the adapter's own error
// table. A zero or out-of-band status is remapped to 500 before
// classification, matching the edge case every adapter must reproduce.
func (b base) doGet(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return b.doRequest(ctx, http.MethodGet, url, nil, headers)
}

// doRequest is doGet generalized to any HTTP method and body, for adapters
// (e.g. ParaSwap's transaction builder) whose getQuote step is a POST.
func (b base) doRequest(ctx context.Context, method, url string, body io.Reader, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperror.ProviderUnspecified(b.name, "failed to build request", err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperror.ProviderTimeout(b.name, err)
		}
		return nil, apperror.ProviderUnspecified(b.name, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ParseResponse(b.name, "failed to read response body", err)
	}

	status := resp.StatusCode
	if status <= 0 || status >= 600 {
		status = http.StatusInternalServerError
	}
	if status >= 300 {
		return nil, b.classify(status, string(respBody))
	}
	return respBody, nil
}

// classify maps an upstream status/body pair into the closed error
// taxonomy via the adapter's own substring table. Unmatched errors become
// ProviderUnspecified.
func (b base) classify(status int, body string) *apperror.Error {
	for _, rule := range b.errorTable {
		if rule.Status != 0 && rule.Status != status {
			continue
		}
		if rule.Substr != "" && !contains(body, rule.Substr) {
			continue
		}
		return apperror.New(rule.Kind, b.name, fmt.Sprintf("upstream status %d", status), nil).
			WithDetails(map[string]interface{}{"status": status, "body": truncate(body, 500)})
	}
	return apperror.ProviderUnspecified(b.name, fmt.Sprintf("unclassified upstream status %d", status), nil).
		WithDetails(map[string]interface{}{"status": status, "body": truncate(body, 500)})
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// gweiToWei converts a decimal gwei string into an integer wei string,
// matching int(Decimal(gas_price_gwei) * 10**9) in the original source's
// KyberSwap adapter. Returns "0" on malformed input rather than erroring:
// a missing gas price estimate is not fatal to a price quote.
func gweiToWei(gwei string) string {
	r, ok := new(big.Rat).SetString(gwei)
	if !ok {
		return "0"
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)))
	if !r.IsInt() {
		return new(big.Int).Div(r.Num(), r.Denom()).String()
	}
	return r.Num().String()
}
