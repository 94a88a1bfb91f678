package constants

// Database table names
const (
	TableCredentials = "account_credentials"
	TableSessions    = "account_sessions"
)
