package amm

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDeadlineOffset bounds how long a submitted swap stays valid.
const DefaultDeadlineOffset = time.Minute

// feeDenominator is the fee unit: hundredths of a basis point out of 1e6.
var feeDenominator = big.NewInt(1_000_000)

// TradeRequest describes an exact-input swap the caller wants to execute.
// Construct via NewTradeRequest so the deadline is computed fresh at
// request time; a retried operation must build a new request.
type TradeRequest struct {
	InputToken  common.Address
	OutputToken common.Address
	AmountIn    *big.Int
	Tolerance   Fraction
	Deadline    *big.Int // absolute unix timestamp
	Recipient   common.Address
}

// NewTradeRequest builds a validated request. A zero tolerance value
// selects the 0.1% default; a non-positive offset selects the one-minute
// default. The deadline is now + offset, computed here and nowhere else.
func NewTradeRequest(input, output common.Address, amountIn *big.Int, recipient common.Address, tolerance Fraction, deadlineOffset time.Duration) (TradeRequest, error) {
	if input == output {
		return TradeRequest{}, fmt.Errorf("input and output token are both %s", input.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return TradeRequest{}, fmt.Errorf("input amount must be positive, got %v", amountIn)
	}
	if tolerance == (Fraction{}) {
		tolerance = DefaultSlippage
	}
	if err := tolerance.Validate(); err != nil {
		return TradeRequest{}, err
	}
	if deadlineOffset <= 0 {
		deadlineOffset = DefaultDeadlineOffset
	}

	return TradeRequest{
		InputToken:  input,
		OutputToken: output,
		AmountIn:    amountIn,
		Tolerance:   tolerance,
		Deadline:    big.NewInt(time.Now().Add(deadlineOffset).Unix()),
		Recipient:   recipient,
	}, nil
}

// SwapInstruction is a fully constructed exact-input swap ready for the
// router: the quote, the slippage floor the contract will enforce, and
// the encoded call.
type SwapInstruction struct {
	TokenIn     common.Address
	TokenOut    common.Address
	Fee         uint32
	AmountIn    *big.Int
	ExpectedOut *big.Int
	MinimumOut  *big.Int
	Deadline    *big.Int
	Recipient   common.Address
	ZeroForOne  bool
	Calldata    []byte
}

// BuildTrade quotes an exact-input swap against a pool snapshot and
// encodes the router call. The quote moves the price only within the
// usable tick bracketing the current price; an input large enough to push
// past that bracket fails with ErrInsufficientLiquidity instead of
// partially filling. MinimumOut is strictly below ExpectedOut whenever
// the tolerance is nonzero; the deadline is embedded verbatim from the
// request.
//
// The pool itself can still move between snapshot and submission — that
// race is accepted and surfaces as a downstream contract rejection, which
// the deadline bounds in time.
func BuildTrade(snap *PoolSnapshot, req TradeRequest) (*SwapInstruction, error) {
	if req.Deadline == nil || req.Deadline.Int64() <= time.Now().Unix() {
		return nil, fmt.Errorf("%w: deadline %v", ErrExpiredDeadline, req.Deadline)
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive, got %v", req.AmountIn)
	}
	if err := req.Tolerance.Validate(); err != nil {
		return nil, err
	}

	var zeroForOne bool
	switch {
	case req.InputToken == snap.Token0 && req.OutputToken == snap.Token1:
		zeroForOne = true
	case req.InputToken == snap.Token1 && req.OutputToken == snap.Token0:
		zeroForOne = false
	default:
		return nil, fmt.Errorf("token pair %s/%s does not match pool pair %s/%s",
			req.InputToken.Hex(), req.OutputToken.Hex(), snap.Token0.Hex(), snap.Token1.Hex())
	}

	spacing, err := SpacingFor(snap.Fee)
	if err != nil {
		return nil, err
	}

	if snap.Liquidity == nil || snap.Liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool has no in-range liquidity", ErrInsufficientLiquidity)
	}

	// Fee comes off the input before it moves the price.
	amountInLessFee := new(big.Int).Mul(req.AmountIn, new(big.Int).Sub(feeDenominator, big.NewInt(int64(snap.Fee))))
	amountInLessFee.Div(amountInLessFee, feeDenominator)
	if amountInLessFee.Sign() <= 0 {
		return nil, fmt.Errorf("%w: input %s is consumed entirely by the %d fee",
			ErrInsufficientLiquidity, req.AmountIn, snap.Fee)
	}

	// Locate the bracketing usable tick before quoting: a price sitting
	// exactly on the lower boundary means downward trades execute in the
	// bracket below it, where the in-range liquidity changes by the net
	// delta recorded at the boundary tick.
	liquidity := snap.Liquidity
	bracketLower := floorDiv(snap.CurrentTick, spacing) * spacing
	if zeroForOne {
		boundary, berr := SqrtRatioAtTick(bracketLower)
		if berr != nil {
			return nil, berr
		}
		if snap.SqrtPriceX96.Cmp(boundary) == 0 {
			// Crossing down through an initialized tick removes its net
			// liquidity from range.
			if info, ok := snap.Ticks[bracketLower]; ok && info.LiquidityNet != nil {
				liquidity = new(big.Int).Sub(liquidity, info.LiquidityNet)
			}
			if liquidity.Sign() <= 0 {
				return nil, fmt.Errorf("%w: no liquidity below tick %d",
					ErrInsufficientLiquidity, bracketLower)
			}
			bracketLower -= spacing
		}
	}

	var nextSqrtPrice, expectedOut *big.Int
	if zeroForOne {
		nextSqrtPrice = nextSqrtPriceFromAmount0(snap.SqrtPriceX96, liquidity, amountInLessFee)
		expectedOut = amount1Delta(nextSqrtPrice, snap.SqrtPriceX96, liquidity)
	} else {
		nextSqrtPrice = nextSqrtPriceFromAmount1(snap.SqrtPriceX96, liquidity, amountInLessFee)
		expectedOut = amount0Delta(snap.SqrtPriceX96, nextSqrtPrice, liquidity)
	}

	// Reject anything that would leave the bracket: the snapshot only
	// knows the liquidity inside it.
	if err := checkWithinBracket(nextSqrtPrice, bracketLower, spacing, zeroForOne); err != nil {
		return nil, fmt.Errorf("input %s against liquidity %s: %w",
			req.AmountIn, liquidity, err)
	}

	if expectedOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: input %s quotes zero output", ErrInsufficientLiquidity, req.AmountIn)
	}

	minimumOut := req.Tolerance.ApplyFloor(expectedOut)

	calldata := EncodeExactInputSingle(ExactInputSingleParams{
		TokenIn:           req.InputToken,
		TokenOut:          req.OutputToken,
		Fee:               snap.Fee,
		Recipient:         req.Recipient,
		Deadline:          req.Deadline,
		AmountIn:          req.AmountIn,
		AmountOutMinimum:  minimumOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})

	return &SwapInstruction{
		TokenIn:     req.InputToken,
		TokenOut:    req.OutputToken,
		Fee:         snap.Fee,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		ExpectedOut: expectedOut,
		MinimumOut:  minimumOut,
		Deadline:    req.Deadline,
		Recipient:   req.Recipient,
		ZeroForOne:  zeroForOne,
		Calldata:    calldata,
	}, nil
}

// checkWithinBracket verifies the post-swap price stays inside the usable
// tick the snapshot captured.
func checkWithinBracket(nextSqrtPrice *big.Int, bracketLower, spacing int, zeroForOne bool) error {
	if zeroForOne {
		boundary, err := SqrtRatioAtTick(bracketLower)
		if err != nil {
			return err
		}
		if nextSqrtPrice.Cmp(boundary) < 0 {
			return fmt.Errorf("%w: swap would cross below tick %d", ErrInsufficientLiquidity, bracketLower)
		}
		return nil
	}
	boundary, err := SqrtRatioAtTick(bracketLower + spacing)
	if err != nil {
		return err
	}
	if nextSqrtPrice.Cmp(boundary) > 0 {
		return fmt.Errorf("%w: swap would cross above tick %d", ErrInsufficientLiquidity, bracketLower+spacing)
	}
	return nil
}

// nextSqrtPriceFromAmount0 moves the price down as amount0 is added:
// sqrtP' = L*Q96*sqrtP / (L*Q96 + amount*sqrtP).
func nextSqrtPriceFromAmount0(sqrtP, liquidity, amount *big.Int) *big.Int {
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtP)
	denominator := new(big.Int).Add(numerator1, product)
	next := new(big.Int).Mul(numerator1, sqrtP)
	return next.Div(next, denominator)
}

// nextSqrtPriceFromAmount1 moves the price up as amount1 is added:
// sqrtP' = sqrtP + amount*Q96/L.
func nextSqrtPriceFromAmount1(sqrtP, liquidity, amount *big.Int) *big.Int {
	quotient := new(big.Int).Lsh(amount, 96)
	quotient.Div(quotient, liquidity)
	return new(big.Int).Add(sqrtP, quotient)
}

// amount1Delta is L * (sqrtB - sqrtA) / Q96 for sqrtA <= sqrtB.
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	out := new(big.Int).Mul(liquidity, diff)
	return out.Rsh(out, 96)
}

// amount0Delta is L * Q96 * (sqrtB - sqrtA) / (sqrtB * sqrtA) for sqrtA <= sqrtB.
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	out := new(big.Int).Mul(liquidity, diff)
	out.Lsh(out, 96)
	out.Div(out, sqrtB)
	return out.Div(out, sqrtA)
}
