package constants

// Machine-readable API error codes
const (
	CodeInternalError          = "internal_error"
	CodeNotFound               = "not_found"
	CodeBadRequest             = "bad_request"
	CodeUnauthorized           = "unauthorized"
	CodeValidationError        = "validation_error"
	CodeInvalidCredentials     = "invalid_credentials"
	CodeInvalidOrExpiredToken  = "invalid_or_expired_token"
	CodeWeakPassword           = "weak_password"
	CodeInvalidCurrentPassword = "invalid_current_password"
	CodeSameAsCurrentPassword  = "same_as_current_password"
)
