package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation は作成要求のフィールドが欠落または不正であることを表す。再試行しない。
	ErrValidation = errors.New("入力値が不正です")
	// ErrPersistence はストアが利用できない、または書き込みに失敗したことを表す。
	ErrPersistence = errors.New("永続化に失敗しました")
	// ErrNotFound は指定IDのチケットが存在しないことを表す。
	ErrNotFound = errors.New("チケットが見つかりません")
	// ErrConflict はチケットが既に終端状態で、遷移を適用できないことを表す。
	ErrConflict = errors.New("チケットは既に終端状態です")
	// ErrSweepInProgress は別のスイープが実行中であることを表す。
	ErrSweepInProgress = errors.New("スイープは実行中です")
)

// ValidationError は検証に失敗したフィールドを保持する。
type ValidationError struct {
	// Field はJSON上のフィールド名。
	Field string
	// Reason は失敗理由。
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap はErrValidationを返す。
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
