// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"math"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("money", validateMoney)
	}
}

// validateMoney accepts positive amounts that land on whole cents. Amounts
// with sub-cent precision would desync local totals from the remote ledger's
// 2-decimal money strings.
func validateMoney(fl validator.FieldLevel) bool {
	amount := fl.Field().Float()
	if amount <= 0 || amount >= 1e9 {
		return false
	}
	cents := amount * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
