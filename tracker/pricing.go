package tracker

import (
	// The default rate table ships inside the binary.
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var defaultPricing []byte

// Cost is the priced token usage of one record. All three values are exact
// decimals; they are persisted as text, never as binary floats.
type Cost struct {
	Input  decimal.Decimal
	Output decimal.Decimal
	Total  decimal.Decimal
}

type modelRate struct {
	input  decimal.Decimal
	output decimal.Decimal
}

// Estimator maps (provider, model, token usage) to an estimated cost.
// A nil Estimator is valid and prices nothing: ingestion degrades to
// records without cost fields rather than failing.
type Estimator struct {
	// rates keyed by provider then model.
	rates map[string]map[string]modelRate
}

type pricingFile struct {
	Providers map[string]map[string]struct {
		Input  string `yaml:"input"`
		Output string `yaml:"output"`
	} `yaml:"providers"`
}

// NewEstimator loads the embedded rate table.
func NewEstimator() (*Estimator, error) {
	return parsePricing(defaultPricing)
}

// NewEstimatorFromFile loads a rate table from disk, replacing the
// embedded defaults entirely.
func NewEstimatorFromFile(path string) (*Estimator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tracker: read pricing %s: %w", path, err)
	}
	return parsePricing(data)
}

func parsePricing(data []byte) (*Estimator, error) {
	var f pricingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tracker: parse pricing: %w", err)
	}
	e := &Estimator{rates: make(map[string]map[string]modelRate)}
	for provider, models := range f.Providers {
		e.rates[provider] = make(map[string]modelRate, len(models))
		for model, r := range models {
			in, err := decimal.NewFromString(r.Input)
			if err != nil {
				return nil, fmt.Errorf("tracker: pricing %s/%s input rate: %w", provider, model, err)
			}
			out, err := decimal.NewFromString(r.Output)
			if err != nil {
				return nil, fmt.Errorf("tracker: pricing %s/%s output rate: %w", provider, model, err)
			}
			e.rates[provider][model] = modelRate{input: in, output: out}
		}
	}
	return e, nil
}

// Estimate prices the given usage. ok is false when the estimator has no
// rate for the model; callers keep ingesting with null costs. It never
// returns an error: unknown models are a degraded state, not a failure.
//
// When provider is empty the model is looked up across all providers and
// matches only if unambiguous.
func (e *Estimator) Estimate(provider, model string, inputTokens, outputTokens int64) (Cost, bool) {
	if e == nil {
		return Cost{}, false
	}
	rate, ok := e.lookup(provider, model)
	if !ok {
		return Cost{}, false
	}
	in := rate.input.Mul(decimal.NewFromInt(inputTokens))
	out := rate.output.Mul(decimal.NewFromInt(outputTokens))
	return Cost{Input: in, Output: out, Total: in.Add(out)}, true
}

// nullable wraps an exact decimal as a valid nullable cost field.
func nullable(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func (e *Estimator) lookup(provider, model string) (modelRate, bool) {
	if provider != "" {
		r, ok := e.rates[provider][model]
		return r, ok
	}
	var found modelRate
	matches := 0
	for _, models := range e.rates {
		if r, ok := models[model]; ok {
			found = r
			matches++
		}
	}
	return found, matches == 1
}
