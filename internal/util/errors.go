package util

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrTrackNotFound        = fmt.Errorf("track %w", ErrNotFound)
	ErrUnitNotFound         = fmt.Errorf("unit %w", ErrNotFound)
	ErrQuizNotFound         = fmt.Errorf("quiz %w", ErrNotFound)
	ErrCredentialNotFound   = fmt.Errorf("credential %w", ErrNotFound)
	ErrPermissionDenied     = errors.New("permission denied")
	ErrUnitLocked           = errors.New("unit is locked")
	ErrInvalidSubmission    = errors.New("invalid submission")
	ErrInvalidContent       = errors.New("invalid content")
	ErrUnitImmutable        = errors.New("unit has completions and can no longer be changed")
	ErrTransientStore       = errors.New("transient store failure")
	ErrRenderingUnavailable = errors.New("certificate rendering unavailable")
)

// Transient 将存储层错误标记为可重试
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

// IsDomainError 判断是否为业务错误（无需包装为存储故障）
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnitLocked) ||
		errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrInvalidContent) ||
		errors.Is(err, ErrUnitImmutable) ||
		errors.Is(err, ErrPermissionDenied)
}
