// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"reflect"

	"stocktracker/internal/indicators"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/symbol"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Register registers all custom validators with the Gin binding engine.
//
// decimal.Decimal fields are validated as float64, so numeric tags such as
// gt=0 work on prices and quantities.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		_ = v.RegisterValidation("stock_symbol", validateStockSymbol)
		_ = v.RegisterValidation("history_period", validateHistoryPeriod)
		_ = v.RegisterValidation("indicator_list", validateIndicatorList)
	}
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateStockSymbol(fl validator.FieldLevel) bool {
	return symbol.Valid(fl.Field().String())
}

func validateHistoryPeriod(fl validator.FieldLevel) bool {
	_, err := marketdata.ParsePeriod(fl.Field().String())
	return err == nil
}

func validateIndicatorList(fl validator.FieldLevel) bool {
	_, err := indicators.Parse(fl.Field().String())
	return err == nil
}
