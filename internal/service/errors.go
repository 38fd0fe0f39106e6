package service

// GiftError is a rejection produced by the gift core.  Code is stable
// and safe to expose to clients; Message is human readable.  Client
// reports whether the caller's input or the order's state caused the
// rejection (as opposed to an operational failure).
type GiftError struct {
	Code    string
	Message string
	Client  bool
}

func (e *GiftError) Error() string { return e.Message }

var (
	ErrMustBePositive = &GiftError{
		Code: "MUST_BE_POSITIVE", Message: "Inputs must be positive.", Client: true}
	ErrAmountMustExceedRecipients = &GiftError{
		Code: "AMOUNT_MUST_EXCEED_RECIPIENTS", Message: "Amount must be greater than max number of receivers.", Client: true}
	ErrInvalidInput = &GiftError{
		Code: "INVALID_INPUT", Message: "Invalid input.", Client: true}

	ErrInvalidToken = &GiftError{
		Code: "INVALID_TOKEN", Message: "Invalid token.", Client: true}
	ErrNotAllowedToCreator = &GiftError{
		Code: "NOT_ALLOWED_TO_CREATOR", Message: "This request is not allowed to the user who created this order.", Client: true}
	ErrExpired = &GiftError{
		Code: "EXPIRED", Message: "This gift has expired.", Client: true}
	ErrAlreadyReceived = &GiftError{
		Code: "ALREADY_RECEIVED", Message: "This user already received.", Client: true}
	ErrAlreadyFullyConsumed = &GiftError{
		Code: "ALREADY_FULLY_CONSUMED", Message: "All money has already been consumed.", Client: true}
	ErrOnlyAllowedToCreator = &GiftError{
		Code: "ONLY_ALLOWED_TO_CREATOR", Message: "This request is only allowed to the user who created this order.", Client: true}
	ErrQueryPeriodPassed = &GiftError{
		Code: "QUERY_PERIOD_PASSED", Message: "Queryable period of this gift has passed.", Client: true}

	// ErrNoTokenAvailable means every token drawn for a room collided.
	// It is an operational failure, not the caller's fault.
	ErrNoTokenAvailable = &GiftError{
		Code: "NO_TOKEN_AVAILABLE", Message: "Failed to create token. All tokens have already been taken."}
)
