package subscriptions

import (
	"math"

	"github.com/holiman/uint256"
)

// Split is the division of one charge between its recipients.
type Split struct {
	Keeper   uint64
	Platform uint64
	Payee    uint64
}

// bpsOf returns amount*bps/10000 using 256-bit intermediates.
func bpsOf(amount uint64, bps uint16) (uint64, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	product.Div(product, uint256.NewInt(feeBpsDivisor))
	if !product.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return product.Uint64(), nil
}

// splitCharge divides price: the keeper fee is taken first, the platform fee
// is applied to what remains and the payee receives the rest.
func splitCharge(price uint64, keeperBps, platformBps uint16) (Split, error) {
	keeper, err := bpsOf(price, keeperBps)
	if err != nil {
		return Split{}, err
	}
	if keeper > price {
		return Split{}, ErrArithmeticOverflow
	}
	remaining := price - keeper
	platform, err := bpsOf(remaining, platformBps)
	if err != nil {
		return Split{}, err
	}
	if platform > remaining {
		return Split{}, ErrArithmeticOverflow
	}
	return Split{Keeper: keeper, Platform: platform, Payee: remaining - platform}, nil
}

func checkedAddInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func checkedMulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	product := a * b
	if product/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return product, true
}

func checkedMulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
