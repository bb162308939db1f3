package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "VALIDATION" // Bad input, missing directories
	CategoryProtocol   ErrorCategory = "PROTOCOL"   // Non-2xx status, malformed or empty response
	CategoryResource   ErrorCategory = "RESOURCE"   // Drive, disk space, memory, caller veto
	CategoryTransfer   ErrorCategory = "TRANSFER"   // Incomplete read, transport failure
	CategoryControl    ErrorCategory = "CONTROL"    // Cancellation and aborts
	CategoryMerge      ErrorCategory = "MERGE"      // Reassembly failures
	CategoryUnknown    ErrorCategory = "UNKNOWN"
)

// Stable result codes. Positive values are HTTP status codes.
const (
	CodeOK             = 200
	CodePartialContent = 206

	CodeURLNotDefined      = -1
	CodeInvalidURL         = -2
	CodeCanceled           = -3
	CodeIncompleteRead     = -4
	CodeInvalidRange       = -5
	CodeZeroLengthContent  = -6
	CodeInsufficientDisk   = -7
	CodeDriveNotReady      = -8
	CodeNullContent        = -9
	CodeAborted            = -10
	CodeInsufficientMemory = -11
	CodeNetwork            = -12
	CodeTimeout            = -13
	CodeChunkWrite         = -14

	CodeMergeChunks        = -200
	CodeCreateFile         = -201
	CodeNoURL              = -202
	CodeNoFileName         = -203
	CodeTempDirMissing     = -204
	CodeMergeDirMissing    = -205
	CodeCustom             = -206
	CodeChunkSourceMissing = -207
)

var (
	ErrRetriesExhausted = New("out of retries")
	ErrCanceledByUser   = New("canceled by user")
	ErrAbortedBySibling = New("aborted after another chunk failed")
)

// DownloadError represents a terminal or retryable failure carrying a stable code.
type DownloadError struct {
	Err       error         // Original error
	Code      int           // Stable numeric code, HTTP status for protocol errors
	Category  ErrorCategory // General category
	Message   string        // Best-effort diagnostic text
	Retryable bool          // Whether retry is recommended
	Timestamp time.Time     // When the error occurred
	Resource  string        // What resource was being accessed
	Details   map[string]interface{}
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = CodeText(e.Code)
	}

	s := fmt.Sprintf("[%s] code %d: %s", e.Category, e.Code, msg)
	if e.Resource != "" {
		s += " (" + e.Resource + ")"
	}

	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Newf creates an error for code with a formatted message.
func Newf(code int, format string, args ...interface{}) *DownloadError {
	return &DownloadError{
		Code:      code,
		Category:  CategoryOf(code),
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryableCode(code),
		Timestamp: time.Now(),
	}
}

// Wrap attaches a code to err. A nil err yields nil.
func Wrap(code int, err error, resource string) *DownloadError {
	if err == nil {
		return nil
	}

	return &DownloadError{
		Err:       err,
		Code:      code,
		Category:  CategoryOf(code),
		Retryable: retryableCode(code),
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewHTTPError creates an error for a non-success HTTP status.
func NewHTTPError(err error, resource string, statusCode int, statusText string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Code:      statusCode,
		Category:  CategoryProtocol,
		Message:   statusText,
		Retryable: true,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewContextError maps a context error to Canceled or Timeout.
func NewContextError(err error, resource string) *DownloadError {
	code := CodeCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}

	return Wrap(code, err, resource)
}

// CategoryOf returns the category a code belongs to.
func CategoryOf(code int) ErrorCategory {
	switch code {
	case CodeOK, CodePartialContent:
		return CategoryUnknown
	case CodeURLNotDefined, CodeInvalidURL, CodeInvalidRange, CodeNoURL, CodeNoFileName,
		CodeTempDirMissing, CodeMergeDirMissing:
		return CategoryValidation
	case CodeZeroLengthContent, CodeNullContent:
		return CategoryProtocol
	case CodeInsufficientDisk, CodeDriveNotReady, CodeInsufficientMemory, CodeCustom:
		return CategoryResource
	case CodeIncompleteRead, CodeNetwork, CodeTimeout, CodeChunkWrite:
		return CategoryTransfer
	case CodeCanceled, CodeAborted:
		return CategoryControl
	case CodeMergeChunks, CodeCreateFile, CodeChunkSourceMissing:
		return CategoryMerge
	}

	if code >= 300 {
		return CategoryProtocol
	}

	return CategoryUnknown
}

func retryableCode(code int) bool {
	switch CategoryOf(code) {
	case CategoryTransfer, CategoryProtocol:
		return code != CodeZeroLengthContent && code != CodeNullContent
	default:
		return false
	}
}

// CodeOf extracts the stable code from err.
func CodeOf(err error) int {
	if err == nil {
		return CodeOK
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceledByUser) {
		return CodeCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	return CodeCustom
}

// MessageOf returns the diagnostic message of err, or "" when it has none.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		if downloadErr.Message != "" {
			return downloadErr.Message
		}

		if downloadErr.Err != nil {
			return downloadErr.Err.Error()
		}

		return ""
	}

	return err.Error()
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Retryable
	}

	return false
}

// IsCanceled reports whether err stems from cancellation.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceledByUser) {
		return true
	}

	return CodeOf(err) == CodeCanceled
}

// IsSuccess reports whether code is one of the success statuses.
func IsSuccess(code int) bool {
	return code == CodeOK || code == CodePartialContent
}

// WithDetails adds additional context to a DownloadError
func WithDetails(err error, details map[string]interface{}) error {
	var downloadErr *DownloadError
	if !As(err, &downloadErr) {
		return err
	}

	if downloadErr.Details == nil {
		downloadErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		downloadErr.Details[k] = v
	}

	return downloadErr
}

// CodeText describes a code in plain English.
func CodeText(code int) string {
	switch code {
	case CodeOK, CodePartialContent:
		return "success"
	case 400:
		return "client error"
	case 403:
		return "the file is not accessible"
	case 404:
		return "the file was not found"
	case CodeURLNotDefined, CodeNoURL:
		return "no URL specified"
	case CodeInvalidURL:
		return "invalid URL"
	case CodeCanceled:
		return "download canceled"
	case CodeIncompleteRead:
		return "incomplete data read"
	case CodeInvalidRange:
		return "invalid byte range"
	case CodeZeroLengthContent:
		return "the file on the server is empty"
	case CodeInsufficientDisk:
		return "insufficient disk space"
	case CodeDriveNotReady:
		return "drive not ready"
	case CodeNullContent:
		return "no content received"
	case CodeAborted:
		return "download aborted"
	case CodeInsufficientMemory:
		return "insufficient memory"
	case CodeNetwork:
		return "network error"
	case CodeTimeout:
		return "operation timed out"
	case CodeChunkWrite:
		return "failed to write chunk data"
	case CodeMergeChunks:
		return "failed to merge chunks"
	case CodeCreateFile:
		return "failed to create file"
	case CodeNoFileName:
		return "no file name specified"
	case CodeTempDirMissing:
		return "temporary directory does not exist"
	case CodeMergeDirMissing:
		return "merging directory does not exist"
	case CodeCustom:
		return "rejected by caller"
	case CodeChunkSourceMissing:
		return "chunk data is missing"
	default:
		return fmt.Sprintf("error code %d", code)
	}
}
