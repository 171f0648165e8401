package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		"", ErrOutOfBounds, ErrOverlap, ErrDirectionMismatch, ErrConnectorCharNotFound,
		ErrNoParentVerse, ErrRoomNotEmpty, ErrTextLengthInvalid, ErrEmptyCell,
		ErrInvalidChar, ErrRoomNotFound, ErrProtoBadRequest, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Errorf("expected %q to be known", code)
		}
	}
	if IsKnownCode("E_NOT_A_REAL_CODE") {
		t.Error("unexpected known code")
	}
}

func TestRejectionError(t *testing.T) {
	rej := Reject(ErrDirectionMismatch, "required direction is %s", "vertical")
	if rej.Code != ErrDirectionMismatch {
		t.Fatalf("code = %q", rej.Code)
	}
	want := "E_DIRECTION_MISMATCH: required direction is vertical"
	if rej.Error() != want {
		t.Fatalf("Error() = %q, want %q", rej.Error(), want)
	}
}
