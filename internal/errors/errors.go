package errors

import (
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Code 是跨模块共享的错误码，业务包在 init 中通过 Register 声明自己的码。
type Code string

// Severity 决定日志级别以及是否需要告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Level 把严重程度映射为 slog 级别。
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Attributes 是错误码的默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	// Status 是后端对外返回的 HTTP 状态码，0 视为 500。
	Status int
}

// HTTPStatus 返回有效的 HTTP 状态码。
func (a Attributes) HTTPStatus() int {
	if a.Status == 0 {
		return http.StatusInternalServerError
	}
	return a.Status
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
)

type codeRegistry struct {
	mu    sync.RWMutex
	attrs map[Code]Attributes
}

var registry = &codeRegistry{attrs: map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical},
	CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo, Status: http.StatusUnprocessableEntity},
	CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo, Status: http.StatusNotFound},
	CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning, Status: http.StatusConflict},
	CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Status: http.StatusServiceUnavailable},
	CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true},
	CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Status: http.StatusServiceUnavailable},
}}

// Register 声明或覆盖错误码的默认行为。
func Register(code Code, attr Attributes) {
	registry.mu.Lock()
	registry.attrs[code] = attr
	registry.mu.Unlock()
}

// Lookup 返回已注册的属性。
func Lookup(code Code) (Attributes, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	attr, ok := registry.attrs[code]
	return attr, ok
}

// AttributesOf 与 Lookup 相同，未注册的码回落到 UNKNOWN。
func AttributesOf(code Code) Attributes {
	if attr, ok := Lookup(code); ok {
		return attr
	}
	attr, _ := Lookup(CodeUnknown)
	return attr
}

type field struct {
	key   string
	value string
}

// Error 携带错误码、面向用户的描述、底层原因和少量上下文字段。
type Error struct {
	code     Code
	message  string
	cause    error
	severity Severity
	fields   []field
}

// Option 调整新建的 Error。
type Option func(*Error)

// WithField 附加一个上下文字段，例如 run_id。
func WithField(key, value string) Option {
	return func(e *Error) {
		e.fields = append(e.fields, field{key: key, value: value})
	}
}

// WithSeverity 覆盖错误码注册的严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = sev
	}
}

// New 创建错误，message 为空时取注册的默认描述。
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

// Wrap 与 New 相同，并记录 cause。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 形如 "CODE: message: cause"。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，使哨兵错误可以直接用 errors.Is 判断。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含错误码和原因的描述，可直接展示给用户。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Fields 返回上下文字段的副本。
func (e *Error) Fields() map[string]string {
	if e == nil || len(e.fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.fields))
	for _, f := range e.fields {
		out[f.key] = f.value
	}
	return out
}

func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != "" {
		return e.severity
	}
	return AttributesOf(e.code).Severity
}

// LogValue 让 slog.Any("error", err) 输出结构化分组。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := make([]slog.Attr, 0, 4+len(e.fields))
	attrs = append(attrs,
		slog.String("code", string(e.code)),
		slog.String("message", e.message),
		slog.String("severity", string(e.Severity())),
	)
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	for _, f := range e.fields {
		attrs = append(attrs, slog.String(f.key, f.value))
	}
	return slog.GroupValue(attrs...)
}

// From 从错误链中取出最外层的 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误码，普通错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsRetryable 判断错误是否值得重试。
func IsRetryable(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// SeverityOf 返回错误的严重程度，普通错误按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// StatusOf 返回错误对应的 HTTP 状态码。
func StatusOf(err error) int {
	return AttributesOf(CodeOf(err)).HTTPStatus()
}

// FieldsOf 返回错误链上 *Error 的上下文字段。
func FieldsOf(err error) map[string]string {
	if e, ok := From(err); ok {
		return e.Fields()
	}
	return nil
}
