package codes

// Code represents a Postgres error code
type Code string

// Error codes returned by a PostgreSQL backend or raised by the driver
// itself. This table carries the subset of SQLSTATE values a frontend deals
// with directly; any other value received over the wire is passed through
// untouched.
// http://www.postgresql.org/docs/current/static/errcodes-appendix.html
var (
	// Section: Class 00 - Successful Completion
	SuccessfulCompletion Code = "00000"
	// Section: Class 01 - Warning
	Warning Code = "01000"
	// Section: Class 03 - SQL Statement Not Yet Complete
	SQLStatementNotYetComplete Code = "03000"
	// Section: Class 08 - Connection Exception
	ConnectionException                     Code = "08000"
	ConnectionDoesNotExist                  Code = "08003"
	ConnectionFailure                       Code = "08006"
	SQLclientUnableToEstablishSQLconnection Code = "08001"
	ProtocolViolation                       Code = "08P01"
	// Section: Class 0A - Feature Not Supported
	FeatureNotSupported Code = "0A000"
	// Section: Class 22 - Data Exception
	DataException  Code = "22000"
	DivisionByZero Code = "22012"
	// Section: Class 25 - Invalid Transaction State
	InvalidTransactionState Code = "25000"
	// Section: Class 26 - Invalid SQL Statement Name
	InvalidSQLStatementName Code = "26000"
	// Section: Class 28 - Invalid Authorization Specification
	InvalidAuthorizationSpecification Code = "28000"
	InvalidPassword                   Code = "28P01"
	// Section: Class 34 - Invalid Cursor Name
	InvalidCursorName Code = "34000"
	// Section: Class 42 - Syntax Error or Access Rule Violation
	Syntax                             Code = "42601"
	UndefinedTable                     Code = "42P01"
	InvalidPreparedStatementDefinition Code = "42P14"
	DuplicatePreparedStatement         Code = "42P05"
	// Section: Class 53 - Insufficient Resources
	InsufficientResources Code = "53000"
	// Section: Class 54 - Program Limit Exceeded
	ProgramLimitExceeded Code = "54000"
	// Section: Class 57 - Operator Intervention
	OperatorIntervention Code = "57000"
	QueryCanceled        Code = "57014"
	AdminShutdown        Code = "57P01"
	CrashShutdown        Code = "57P02"
	CannotConnectNow     Code = "57P03"
	// Section: Class 58 - System Error
	System  Code = "58000"
	IoError Code = "58030"
	// Section: Class XX - Internal Error
	Internal      Code = "XX000"
	DataCorrupted Code = "XX001"
	// Uncategorized errors do not fit any predefined Postgres error class.
	Uncategorized Code = "XXUUU"
)
