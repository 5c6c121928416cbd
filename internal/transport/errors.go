package transport

import "fmt"

// PermissionError reports a 401/403 from a registry. The message carries
// everything an operator needs to diagnose a key or IP-allowlist problem.
type PermissionError struct {
	Query   string
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

func newPermissionError(query, ipAddress, keyEnvName, keyFilePath string) *PermissionError {
	return &PermissionError{
		Query: query,
		Message: fmt.Sprintf(
			"query %s returned a permission (401/403) error. "+
				"If that query seems correct, check %s is set in the local %s file. "+
				"If both are correct, check the external IP address of this computer (%s) "+
				"is included in the list of Restricted IPs on your registered API key.",
			query, keyEnvName, keyFilePath, ipAddress),
	}
}

// ConnectivityError reports that the registry (or the outbound IP-check
// service) could not be reached at all: a local network problem, not a
// key problem.
type ConnectivityError struct {
	Cause error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf(
		"your external IP address cannot be found: either no internet connection "+
			"or a restricted local network without access to the registries (%v)", e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}

// RetryExhaustedError reports that every trial for one query failed with a
// retryable status.
type RetryExhaustedError struct {
	Query  string
	Trials int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed %d attempt(s) querying %s", e.Trials, e.Query)
}
