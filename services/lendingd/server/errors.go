package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"kylix/native/assets"
	nativecommon "kylix/native/common"
	"kylix/native/lending"
)

var errUnauthenticated = errors.New("authentication required")

var notFoundErrors = []error{
	lending.ErrLendingPoolDoesNotExist,
	lending.ErrLoanDoesNotExist,
	lending.ErrAssetPriceNotSet,
	assets.ErrUnknownAsset,
}

var conflictErrors = []error{
	lending.ErrLendingPoolAlreadyExists,
	lending.ErrLendingPoolAlreadyActivated,
	lending.ErrLendingPoolAlreadyDeactivated,
	lending.ErrIDAlreadyExists,
	assets.ErrAssetExists,
}

// statusFor maps a ledger error onto an HTTP status code.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		return http.StatusServiceUnavailable
	}
	switch lending.Classify(err) {
	case lending.KindValidation:
		return http.StatusBadRequest
	case lending.KindSolvency, lending.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		replacer := strings.NewReplacer(
			"\\", "\\\\",
			"\"", "\\\"",
			"\n", "\\n",
			"\r", "\\r",
			"\t", "\\t",
		)
		payload = []byte(fmt.Sprintf("{\"error\":\"%s\"}", replacer.Replace(message)))
	}
	_, _ = w.Write(payload)
}

func writeLedgerError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}
