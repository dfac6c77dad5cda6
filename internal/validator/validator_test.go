package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/models"
)

func TestValidatePriceRequest(t *testing.T) {
	base := func() models.PriceRequest {
		return models.PriceRequest{
			SellToken:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			BuyToken:   "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
			SellAmount: "1000000",
			ChainID:    1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.PriceRequest)
		wantErr bool
	}{
		{"valid request", func(r *models.PriceRequest) {}, false},
		{"malformed sell address", func(r *models.PriceRequest) { r.SellToken = "not-an-address" }, true},
		{"same sell and buy token", func(r *models.PriceRequest) { r.BuyToken = r.SellToken }, true},
		{"zero sell amount", func(r *models.PriceRequest) { r.SellAmount = "0" }, true},
		{"negative sell amount", func(r *models.PriceRequest) { r.SellAmount = "-5" }, true},
		{"non-numeric sell amount", func(r *models.PriceRequest) { r.SellAmount = "abc" }, true},
		{"malformed taker address", func(r *models.PriceRequest) { r.TakerAddress = "0x1" }, true},
		{"valid taker address", func(r *models.PriceRequest) {
			r.TakerAddress = "0xa094c5c1dfb3a4b0f78df8a00dd42c45e726a5c1"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			err := ValidatePriceRequest(req)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, apperror.As(err, apperror.KindValidationFailed))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSlippageBounds(t *testing.T) {
	ok := 0.5
	assert.NoError(t, ValidateSlippage(&ok))
	assert.NoError(t, ValidateSlippage(nil))

	tooHigh := 1.5
	assert.Error(t, ValidateSlippage(&tooHigh))

	zero := 0.0
	assert.Error(t, ValidateSlippage(&zero))
}
