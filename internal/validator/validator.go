// Package validator holds the ingress validation rules applied before a
// request reaches the engine: address shape, positive-integer amount
// strings, and slippage bounds.
package validator

import (
	"strings"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/models"
)

// ValidateAddress requires a 0x-prefixed 40-hex-char address, or the
// native-token sentinel, which is itself shaped like an address.
func ValidateAddress(field, address string) error {
	if address == "" {
		return apperror.ValidationFailed(field + " is required")
	}
	if !models.ValidAddress(address) {
		return apperror.ValidationFailed(field + " must be a 42-character hex address")
	}
	return nil
}

// ValidateAmount requires a positive base-10 integer string (wei-scale,
// no decimals, no sign).
func ValidateAmount(field, amount string) error {
	if amount == "" {
		return apperror.ValidationFailed(field + " is required")
	}
	if strings.HasPrefix(amount, "-") {
		return apperror.ValidationFailed(field + " must be positive")
	}
	for _, c := range amount {
		if c < '0' || c > '9' {
			return apperror.ValidationFailed(field + " must be a base-10 integer string")
		}
	}
	if amount == "0" {
		return apperror.ValidationFailed(field + " must be greater than zero")
	}
	return nil
}

// ValidateSlippage requires a fraction in (0, 1] when present.
func ValidateSlippage(slippage *float64) error {
	if slippage == nil {
		return nil
	}
	if *slippage <= 0 || *slippage > 1 {
		return apperror.ValidationFailed("slippagePercentage must be in (0, 1]")
	}
	return nil
}

// ValidatePriceRequest validates the common fields of a same-chain price
// or quote request.
func ValidatePriceRequest(req models.PriceRequest) error {
	if err := ValidateAddress("sellToken", req.SellToken); err != nil {
		return err
	}
	if err := ValidateAddress("buyToken", req.BuyToken); err != nil {
		return err
	}
	if models.NormalizeAddress(req.SellToken) == models.NormalizeAddress(req.BuyToken) {
		return apperror.ValidationFailed("sellToken and buyToken must differ")
	}
	if err := ValidateAmount("sellAmount", req.SellAmount); err != nil {
		return err
	}
	if req.TakerAddress != "" {
		if err := ValidateAddress("takerAddress", req.TakerAddress); err != nil {
			return err
		}
	}
	return ValidateSlippage(req.SlippagePercentage)
}
