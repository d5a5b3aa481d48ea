package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/native/lending"
	"kylix/numeric/fixed"
	"kylix/observability/logging"
)

type createPoolRequest struct {
	Account crypto.Address `json:"account"`
	PoolID  uint32         `json:"poolId"`
	Asset   uint32         `json:"asset"`
	Amount  *uint256.Int   `json:"amount"`
}

type liquidityRequest struct {
	Account crypto.Address `json:"account"`
	Asset   uint32         `json:"asset"`
	Amount  *uint256.Int   `json:"amount"`
}

type borrowRequest struct {
	Account          crypto.Address `json:"account"`
	Asset            uint32         `json:"asset"`
	Amount           *uint256.Int   `json:"amount"`
	CollateralAsset  uint32         `json:"collateralAsset"`
	CollateralAmount *uint256.Int   `json:"collateralAmount"`
}

type repayRequest struct {
	Account         crypto.Address `json:"account"`
	Asset           uint32         `json:"asset"`
	Amount          *uint256.Int   `json:"amount"`
	CollateralAsset uint32         `json:"collateralAsset"`
}

type priceRequest struct {
	Asset uint32     `json:"asset"`
	Base  uint32     `json:"base"`
	Price fixed.Rate `json:"price"`
}

type poolsResponse struct {
	Pools  []lending.PoolSummary    `json:"pools"`
	Totals lending.AggregatedTotals `json:"totals"`
}

type suppliesResponse struct {
	Supplies []lending.SuppliedAsset `json:"supplies"`
	Total    *uint256.Int            `json:"total"`
}

type priceResponse struct {
	Asset uint32     `json:"asset"`
	Base  uint32     `json:"base"`
	Price fixed.Rate `json:"price"`
}

type amountResponse struct {
	Asset  uint32       `json:"asset"`
	Amount *uint256.Int `json:"amount"`
}

type okResponse struct {
	Status string `json:"status"`
}

var accepted = okResponse{Status: "ok"}

func decodeRequest(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func requireAccount(account crypto.Address) error {
	if account.IsZero() {
		return errors.New("account required")
	}
	return nil
}

func assetParam(r *http.Request, name string) (assets.ID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get(name))
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return assets.ID(value), nil
}

func accountParam(r *http.Request) (crypto.Address, error) {
	account, err := crypto.DecodeAddress(chi.URLParam(r, "account"))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid account: %w", err)
	}
	return account, nil
}

// mutate runs a ledger call and answers with the uniform acknowledgement.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, account crypto.Address, operation string, call func() error) {
	if err := call(); err != nil {
		s.logger.Info("ledger call rejected",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("operation", operation),
			logging.MaskAccount(account.String()),
			slog.Any("error", err))
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := requireAccount(req.Account); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, req.Account, "create_pool", func() error {
		return s.ledger.CreateLendingPool(req.Account, assets.ID(req.PoolID), assets.ID(req.Asset), req.Amount)
	})
}

func (s *Server) poolTransition(w http.ResponseWriter, r *http.Request, operation string, call func(assets.ID) error) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, crypto.Address{}, operation, func() error { return call(asset) })
}

func (s *Server) activatePool(w http.ResponseWriter, r *http.Request) {
	s.poolTransition(w, r, "activate_pool", s.ledger.ActivateLendingPool)
}

func (s *Server) deactivatePool(w http.ResponseWriter, r *http.Request) {
	s.poolTransition(w, r, "deactivate_pool", s.ledger.DeactivateLendingPool)
}

func (s *Server) updateRateModel(w http.ResponseWriter, r *http.Request) {
	s.poolTransition(w, r, "update_rate_model", s.ledger.UpdatePoolRateModel)
}

func (s *Server) updateKink(w http.ResponseWriter, r *http.Request) {
	s.poolTransition(w, r, "update_kink", s.ledger.UpdatePoolKink)
}

func (s *Server) liquidity(w http.ResponseWriter, r *http.Request, operation string, call func(crypto.Address, assets.ID, *uint256.Int) error) {
	var req liquidityRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := requireAccount(req.Account); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, req.Account, operation, func() error {
		return call(req.Account, assets.ID(req.Asset), req.Amount)
	})
}

func (s *Server) supply(w http.ResponseWriter, r *http.Request) {
	s.liquidity(w, r, "supply", s.ledger.Supply)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.liquidity(w, r, "withdraw", s.ledger.Withdraw)
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := requireAccount(req.Account); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, req.Account, "borrow", func() error {
		return s.ledger.Borrow(req.Account, assets.ID(req.Asset), req.Amount, assets.ID(req.CollateralAsset), req.CollateralAmount)
	})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := requireAccount(req.Account); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, req.Account, "repay", func() error {
		return s.ledger.Repay(req.Account, assets.ID(req.Asset), req.Amount, assets.ID(req.CollateralAsset))
	})
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.mutate(w, r, crypto.Address{}, "set_price", func() error {
		return s.ledger.SetAssetPrice(assets.ID(req.Asset), assets.ID(req.Base), req.Price)
	})
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	var filter lending.PoolFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("asset")); raw != "" {
		asset, err := assetParam(r, "asset")
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		filter.Asset = &asset
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		account, err := crypto.DecodeAddress(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid account: %w", err))
			return
		}
		filter.Account = &account
	}
	pools, totals, err := s.ledger.GetLendingPools(filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if pools == nil {
		pools = []lending.PoolSummary{}
	}
	writeJSON(w, http.StatusOK, poolsResponse{Pools: pools, Totals: totals})
}

func (s *Server) userLTV(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ltv, err := s.ledger.GetUserLTV(account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ltv)
}

func (s *Server) userSupplies(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	supplies, total, err := s.ledger.GetAssetWiseSupplies(account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if supplies == nil {
		supplies = []lending.SuppliedAsset{}
	}
	writeJSON(w, http.StatusOK, suppliesResponse{Supplies: supplies, Total: total})
}

func (s *Server) userBorrows(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	report, err := s.ledger.GetAssetWiseBorrowsCollaterals(account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	base, err := assetParam(r, "base")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := s.ledger.GetAssetPrice(asset, base)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Asset: uint32(asset), Base: uint32(base), Price: price})
}

func (s *Server) estimateCollateral(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral, err := assetParam(r, "collateral")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(r.URL.Query().Get("amount")))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid amount: %w", err))
		return
	}
	needed, err := s.ledger.EstimateCollateralAmount(asset, amount, collateral)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Asset: uint32(collateral), Amount: needed})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	asset, err := assetParam(r, "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	balance, err := s.ledger.Balance(asset, account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Asset: uint32(asset), Amount: balance})
}
