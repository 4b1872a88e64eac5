package handlers

const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrNoFamily            = "You must create or join a family first"
	ErrTooManyRequests     = "Too many requests. Please try again later."
	ErrInternalServerError = "Internal server error"
	ErrNotFound            = "Not found"

	// maxBodyBytes caps JSON request bodies
	maxBodyBytes = 1 << 20
)
