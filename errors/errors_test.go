package errors

import (
	"errors"
	"testing"

	"github.com/Online-GS/epgsql/codes"
)

func TestGetCode(t *testing.T) {
	t.Parallel()

	err := WithCode(errors.New("division by zero"), codes.DivisionByZero)
	if GetCode(err) != codes.DivisionByZero {
		t.Errorf("unexpected code: %s", GetCode(err))
	}
}

func TestGetCodeUncategorized(t *testing.T) {
	t.Parallel()

	if GetCode(errors.New("plain")) != codes.Uncategorized {
		t.Error("expected an uncategorized code for undecorated errors")
	}
}

func TestGetCodeWired(t *testing.T) {
	t.Parallel()

	wired := &Error{Code: codes.InvalidPassword, Message: "authentication failed", Severity: LevelFatal}
	if GetCode(wired) != codes.InvalidPassword {
		t.Errorf("unexpected code: %s", GetCode(wired))
	}
}

func TestGetSeverityDefault(t *testing.T) {
	t.Parallel()

	if DefaultSeverity(GetSeverity(errors.New("plain"))) != LevelError {
		t.Error("expected the default severity to be ERROR")
	}
}

func TestFlattenWired(t *testing.T) {
	t.Parallel()

	wired := &Error{
		Code:     codes.Syntax,
		Message:  "syntax error",
		Severity: LevelError,
		Detail:   "unexpected token",
		Hint:     "check the statement",
	}

	flat := Flatten(wired)
	if flat.Detail != "unexpected token" || flat.Hint != "check the statement" {
		t.Error("expected wire errors to flatten as-is")
	}
}

func TestFlattenDecorated(t *testing.T) {
	t.Parallel()

	err := WithSeverity(WithCode(errors.New("sync required"), codes.InvalidTransactionState), LevelFatal)

	flat := Flatten(err)
	if flat.Code != codes.InvalidTransactionState {
		t.Errorf("unexpected code: %s", flat.Code)
	}

	if flat.Severity != LevelFatal {
		t.Errorf("unexpected severity: %s", flat.Severity)
	}
}

func TestFieldDecorators(t *testing.T) {
	t.Parallel()

	err := WithHint(WithDetail(WithConstraintName(errors.New("conflict"), "users_pkey"), "key exists"), "use upsert")

	if GetConstraintName(err) != "users_pkey" {
		t.Errorf("unexpected constraint: %s", GetConstraintName(err))
	}

	if GetDetail(err) != "key exists" {
		t.Errorf("unexpected detail: %s", GetDetail(err))
	}

	if GetHint(err) != "use upsert" {
		t.Errorf("unexpected hint: %s", GetHint(err))
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	wired := &Error{Code: codes.DivisionByZero, Message: "division by zero", Severity: LevelError}
	expected := "ERROR: division by zero (SQLSTATE 22012)"
	if wired.Error() != expected {
		t.Errorf("unexpected error string: %q", wired.Error())
	}
}
