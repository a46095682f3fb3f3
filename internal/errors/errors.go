package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于日志和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。Retryable 指用户重新发起整个流程
// 是否有意义，而不是系统内部的自动重试（交易执行从不自动重试）。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeCredentialNotFound  Code = "CREDENTIAL_NOT_FOUND"
	CodeNothingToSell       Code = "NOTHING_TO_SELL"
	CodeQuoteUnavailable    Code = "QUOTE_UNAVAILABLE"
	CodeSwapBuildFailed     Code = "SWAP_BUILD_FAILED"
	CodeBroadcastFailed     Code = "BROADCAST_FAILED"
	CodeConfirmationTimeout Code = "CONFIRMATION_TIMEOUT"
	CodeAlreadyInProgress   Code = "ALREADY_IN_PROGRESS"
	CodeStorageFailure      Code = "STORAGE_FAILURE"
	CodeEventPublishFailure Code = "EVENT_PUBLISH_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:   "unknown error",
			Severity:  SeverityCritical,
			Retryable: false,
			Alert:     true,
		},
		CodeInvalidArgument: {
			Message:   "invalid argument",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeUnauthorized: {
			Message:   "user not allowed",
			Severity:  SeverityWarning,
			Retryable: false,
			Alert:     false,
		},
		CodeCredentialNotFound: {
			Message:   "wallet credential not found",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeNothingToSell: {
			Message:   "no token balance to sell",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeQuoteUnavailable: {
			Message:   "quote unavailable",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     false,
		},
		CodeSwapBuildFailed: {
			Message:   "swap transaction build failed",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     false,
		},
		CodeBroadcastFailed: {
			Message:   "transaction broadcast failed",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeConfirmationTimeout: {
			Message:   "confirmation deadline exceeded",
			Severity:  SeverityWarning,
			Retryable: false,
			Alert:     true,
		},
		CodeAlreadyInProgress: {
			Message:   "another confirmation is in flight",
			Severity:  SeverityInfo,
			Retryable: true,
			Alert:     false,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityCritical,
			Retryable: true,
			Alert:     true,
		},
		CodeEventPublishFailure: {
			Message:   "trade event publish failure",
			Severity:  SeverityWarning,
			Retryable: false,
			Alert:     true,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如 mint 地址或交易签名。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsCode 判断 err 链上是否携带指定错误码。
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// RetryableError 判断用户重新发起流程是否有意义。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Retryable
	}
	return false
}

// ShouldAlert 判断是否需要在日志中以更高级别记录。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Alert
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
