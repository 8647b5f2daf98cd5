package apperr

import "github.com/tuanvumaihuynh/stock-ledger/pkg/zerror"

const (
	ValidationErrorCode       = "VALIDATION_FAILED"
	ProductNotFoundCode       = "PRODUCT_NOT_FOUND"
	BorrowRecordNotFoundCode  = "BORROW_RECORD_NOT_FOUND"
	InsufficientStockCode     = "INSUFFICIENT_STOCK"
	AlreadyReturnedCode       = "ALREADY_RETURNED"
	OverReturnCode            = "OVER_RETURN"
	StoreBusyCode             = "STORE_BUSY"
	FetchProductsFailedCode   = "FETCH_PRODUCTS_FAILED"
	BorrowFailedCode          = "BORROW_FAILED"
	ReturnFailedCode          = "RETURN_FAILED"
	InvalidRequestDataMessage = "Invalid request data"
)

var (
	ValidationErr = zerror.NewValidationFailed(ValidationErrorCode, InvalidRequestDataMessage)

	ProductNotFoundErr      = zerror.NewNotFound(ProductNotFoundCode, "Product not found")
	BorrowRecordNotFoundErr = zerror.NewNotFound(BorrowRecordNotFoundCode, "Borrow record not found")

	InsufficientStockErr = zerror.NewBadRequest(InsufficientStockCode, "Not enough stock available")
	AlreadyReturnedErr   = zerror.NewBadRequest(AlreadyReturnedCode, "This item has already been fully returned.")
	OverReturnErr        = zerror.NewBadRequest(OverReturnCode, "Quantity returned exceeds quantity borrowed.")

	// StoreBusyErr means a row lock could not be acquired within the lock timeout.
	StoreBusyErr = zerror.NewServiceUnavailable(StoreBusyCode, "Store is busy, please retry")

	FetchProductsErr = zerror.NewInternalServerError(FetchProductsFailedCode, "Failed to fetch products")
	BorrowFailedErr  = zerror.NewInternalServerError(BorrowFailedCode, "Failed to borrow item")
	ReturnFailedErr  = zerror.NewInternalServerError(ReturnFailedCode, "Failed to return item")
)
