package model

import (
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/zenz-bridge/internal/consts"
)

// Decimals is the number of base-unit digits of an asset.
func (c Chain) Decimals() int {
	switch c {
	case ChainBTC:
		return consts.BTC_DECIMALS
	case ChainZEC:
		return consts.ZEC_DECIMALS
	case ChainSOL:
		return consts.SOL_DECIMALS
	default:
		return 0
	}
}

// FormatAmount renders a base-unit amount of the asset in whole units.
func (c Chain) FormatAmount(value int64) string {
	d := int32(c.Decimals())
	return decimal.New(value, -d).StringFixed(d)
}
