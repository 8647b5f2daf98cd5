package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tuanvumaihuynh/stock-ledger/internal/apperr"
	"github.com/tuanvumaihuynh/stock-ledger/internal/http/apierr"
	"github.com/tuanvumaihuynh/stock-ledger/internal/http/metric"
	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/service"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/zerror"
)

const maxRequestBodyBytes = 1 << 20

type borrowRequest struct {
	ProductID int64 `json:"productId"`
	UserID    int64 `json:"userId"`
	Quantity  int64 `json:"quantity"`
}

type returnRequest struct {
	BorrowID         int64 `json:"borrowId"`
	QuantityReturned int64 `json:"quantityReturned"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type borrowResponse struct {
	Message string             `json:"message"`
	Record  model.BorrowRecord `json:"record"`
}

type ledgerHandler struct {
	ledgerSvc service.LedgerService
	metrics   *metric.Metrics
}

func newLedgerHandler(ledgerSvc service.LedgerService, metrics *metric.Metrics) *ledgerHandler {
	return &ledgerHandler{
		ledgerSvc: ledgerSvc,
		metrics:   metrics,
	}
}

func (h *ledgerHandler) ListProducts(w http.ResponseWriter, r *http.Request) error {
	products, err := h.ledgerSvc.ListProducts(r.Context())
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.FetchProductsErr, err)
	}

	if products == nil {
		products = []model.Product{}
	}

	return writeJSON(w, http.StatusOK, products)
}

func (h *ledgerHandler) Borrow(w http.ResponseWriter, r *http.Request) error {
	var req borrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	record, err := h.ledgerSvc.Borrow(r.Context(), service.BorrowParams{
		ProductID: req.ProductID,
		UserID:    req.UserID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		err = operationFailed(err, apperr.BorrowFailedErr)
	}
	h.recordOutcome("borrow", err)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusCreated, borrowResponse{
		Message: "Item borrowed successfully",
		Record:  record,
	})
}

func (h *ledgerHandler) Return(w http.ResponseWriter, r *http.Request) error {
	var req returnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	_, err := h.ledgerSvc.Return(r.Context(), service.ReturnParams{
		BorrowID:         req.BorrowID,
		QuantityReturned: req.QuantityReturned,
	})
	if err != nil {
		err = operationFailed(err, apperr.ReturnFailedErr)
	}
	h.recordOutcome("return", err)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, messageResponse{
		Message: "Item returned successfully",
	})
}

func (h *ledgerHandler) recordOutcome(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apierr.New(err).Code
	}
	h.metrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// operationFailed keeps client-facing errors as they are and wraps anything
// else in failed, so the cause is reported as details.
func operationFailed(err error, failed zerror.ZError) error {
	var zErr zerror.ZError
	if errors.As(err, &zErr) && zErr.Status() != zerror.StatusInternalServerError {
		return err
	}
	return failed.WrapParent(err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.ValidationErr.WrapParent(fmt.Errorf("decode request body: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	w.Write(body)

	return nil
}
