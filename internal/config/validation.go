package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"dolphind/internal/subghz"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrInvalidConfig is wrapped by ValidateConfig failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig checks every section. Only error-level issues fail
// validation; warnings are available through Check.
func ValidateConfig(c *Config) error {
	errs := Check(c).Errors()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Check returns every validation issue, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDolphin(&c.Dolphin)...)
	errs = append(errs, validateReceiver(&c.Receiver)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateHTTP(&c.HTTP)...)
	errs = append(errs, validateTelemetry(&c.Telemetry)...)
	errs = append(errs, validateNotify(&c.Notify)...)

	return errs
}

func validateDolphin(d *DolphinConfig) ValidationErrors {
	var errs ValidationErrors

	if d.QueueSize < 1 || d.QueueSize > 1024 {
		errs = append(errs, *RangeError("dolphin.queue_size", 1, 1024))
	}
	if d.ButthurtPeriodSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "dolphin.butthurt_period_sec",
			Message: "must be positive",
		})
	}
	if d.FlushDelaySec < 1 {
		errs = append(errs, ValidationError{
			Field:   "dolphin.flush_delay_sec",
			Message: "must be positive",
		})
	}
	if d.ClearLimitsHour < 0 || d.ClearLimitsHour > 23 {
		errs = append(errs, *RangeError("dolphin.clear_limits_hour", 0, 23))
	}
	if d.HousekeepingSec < 60 {
		errs = append(errs, ValidationError{
			Field:   "dolphin.housekeeping_sec",
			Message: "must be at least 60 seconds",
		})
	}
	switch d.Timezone {
	case "", "Local", "local":
	default:
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "dolphin.timezone",
				Message: fmt.Sprintf("unknown time zone %q", d.Timezone),
			})
		}
	}

	return errs
}

func validateReceiver(r *ReceiverConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := subghz.NewSetting(r.Frequencies, r.HopperFrequencies, r.DefaultFrequency); err != nil {
		errs = append(errs, ValidationError{
			Field:   "receiver.frequencies",
			Message: err.Error(),
		})
	}
	if _, err := subghz.ParsePreset(r.Preset); err != nil {
		errs = append(errs, ValidationError{
			Field:   "receiver.preset",
			Message: err.Error(),
		})
	}
	if r.HistoryCapacity < 1 || r.HistoryCapacity > 1000 {
		errs = append(errs, *RangeError("receiver.history_capacity", 1, 1000))
	}
	if _, err := subghz.NewDuplicatePolicy(r.DuplicatePolicy,
		time.Duration(r.DuplicateWindowMs)*time.Millisecond, r.DuplicateWindowSize); err != nil {
		errs = append(errs, ValidationError{
			Field:   "receiver.duplicate_policy",
			Message: err.Error(),
		})
	}
	if r.DuplicateWindowMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "receiver.duplicate_window_ms",
			Message: "cannot be negative",
		})
	}
	if r.TickMs < 10 || r.TickMs > 10000 {
		errs = append(errs, *RangeError("receiver.tick_ms", 10, 10000))
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "file", "sqlite":
		if s.Path == "" {
			errs = append(errs, *RequiredFieldError("storage.path"))
		}
	case "memory":
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: "memory storage does not survive restarts",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: file, sqlite, memory)", s.Type),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		// Anything else is taken as a file path.
		if l.Output == "" {
			errs = append(errs, *RequiredFieldError("logging.output"))
		}
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateHTTP(h *HTTPConfig) ValidationErrors {
	if !h.Enabled {
		return nil
	}
	var errs ValidationErrors
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "http.addr",
			Message: fmt.Sprintf("invalid listen address %q: %v", h.Addr, err),
		})
	}
	if h.RateLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "http.rate_limit",
			Message: "rate limit cannot be negative",
		})
	}
	if h.RateLimit > 0 && h.RateBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "http.rate_burst",
			Message: "burst must be at least 1 when rate limiting is enabled",
		})
	}
	return errs
}

func validateTelemetry(t *TelemetryConfig) ValidationErrors {
	var errs ValidationErrors

	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, *RangeError("telemetry.sample_ratio", 0, 1))
	}
	if !t.Enabled {
		return errs
	}
	if t.Endpoint == "" {
		errs = append(errs, *RequiredFieldError("telemetry.endpoint"))
	}
	if t.ServiceName == "" {
		errs = append(errs, *RequiredFieldError("telemetry.service_name"))
	}
	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	switch n.Backend {
	case "dbus", "log", "none":
		return nil
	default:
		return ValidationErrors{{
			Field:   "notify.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: dbus, log, none)", n.Backend),
		}}
	}
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"storage.type", // memory is allowed, just not durable
	}
	for _, f := range warningFields {
		if e.Field == f && !strings.HasPrefix(e.Message, "invalid") {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
