package handlers

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgInvalidItemID      = "Invalid item ID"
	ErrMsgInvalidQuery       = "Invalid query parameter"
)

// Paging defaults for queue listings
const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)
