package lending

import (
	"errors"
	"fmt"

	"kylix/native/assets"
	nativecommon "kylix/native/common"
)

var (
	ErrLendingPoolDoesNotExist              = errors.New("lending engine: lending pool does not exist")
	ErrLendingPoolAlreadyExists             = errors.New("lending engine: lending pool already exists")
	ErrLendingPoolAlreadyActivated          = errors.New("lending engine: lending pool already activated")
	ErrLendingPoolAlreadyDeactivated        = errors.New("lending engine: lending pool already deactivated")
	ErrLendingPoolNotActive                 = errors.New("lending engine: lending pool not active")
	ErrLendingPoolIsEmpty                   = errors.New("lending engine: lending pool is empty")
	ErrInvalidLiquiditySupply               = errors.New("lending engine: invalid liquidity supply")
	ErrInvalidLiquidityWithdrawal           = errors.New("lending engine: invalid liquidity withdrawal")
	ErrNotEnoughLiquiditySupply             = errors.New("lending engine: not enough liquidity supply")
	ErrNotEnoughEligibleLiquidityToWithdraw = errors.New("lending engine: not enough eligible liquidity to withdraw")
	ErrNotEnoughCollateral                  = errors.New("lending engine: not enough collateral")
	ErrIDAlreadyExists                      = errors.New("lending engine: id already exists")
	ErrLoanDoesNotExist                     = errors.New("lending engine: loan does not exist")
	ErrInvalidAssetPrice                    = errors.New("lending engine: invalid asset price")
	ErrAssetPriceNotSet                     = errors.New("lending engine: asset price not set")
	ErrOverflow                             = errors.New("lending engine: arithmetic overflow")
	ErrInvalidUtilisation                   = errors.New("lending engine: utilisation outside [0, 1]")
	ErrInvalidInterestModel                 = errors.New("lending engine: invalid interest rate model")

	errNilState  = errors.New("lending engine: state not configured")
	errNilTokens = errors.New("lending engine: token ledger not configured")
)

// ErrorKind groups engine errors by the remedy available to the caller.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindSolvency
	KindArithmetic
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSolvency:
		return "solvency"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "internal"
	}
}

var (
	validationErrors = []error{
		ErrLendingPoolDoesNotExist,
		ErrLendingPoolAlreadyExists,
		ErrLendingPoolAlreadyActivated,
		ErrLendingPoolAlreadyDeactivated,
		ErrLendingPoolNotActive,
		ErrLendingPoolIsEmpty,
		ErrInvalidLiquiditySupply,
		ErrInvalidLiquidityWithdrawal,
		ErrIDAlreadyExists,
		ErrLoanDoesNotExist,
		ErrInvalidAssetPrice,
		ErrAssetPriceNotSet,
		ErrInvalidInterestModel,
		assets.ErrUnknownAsset,
		nativecommon.ErrModulePaused,
	}
	solvencyErrors = []error{
		ErrNotEnoughLiquiditySupply,
		ErrNotEnoughEligibleLiquidityToWithdraw,
		ErrNotEnoughCollateral,
		assets.ErrInsufficientBalance,
		assets.ErrBelowMinimum,
	}
	arithmeticErrors = []error{
		ErrOverflow,
		ErrInvalidUtilisation,
		assets.ErrOverflow,
	}
)

// Classify maps an error returned by the engine to its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for _, group := range []struct {
		kind ErrorKind
		errs []error
	}{
		{KindArithmetic, arithmeticErrors},
		{KindSolvency, solvencyErrors},
		{KindValidation, validationErrors},
	} {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}

// arithmetic folds numeric failures into ErrOverflow while keeping the cause.
func arithmetic(err error) error {
	if err == nil || errors.Is(err, ErrOverflow) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOverflow, err)
}
