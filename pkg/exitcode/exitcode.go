// Package exitcode provides standardized exit codes for tmplcat
package exitcode

// Exit codes for tmplcat CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ValidationError = 3
	FileSystemError = 4
	// VCSError covers revision lookups that failed for a reason other than
	// a missing parent commit.
	VCSError = 10
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Validation error"
	case FileSystemError:
		return "File system error"
	case VCSError:
		return "Version control error"
	default:
		return "Unknown error"
	}
}
