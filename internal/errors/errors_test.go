package errors

import (
	sterrors "errors"
	"fmt"
	"testing"
)

func TestKindStrings(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown error"},
		{KindInvalidArgument, "invalid argument"},
		{KindResourceDisposed, "resource disposed"},
		{KindEndOfStream, "end of stream"},
		{KindUnsupported, "unsupported operation"},
		{KindInvalidSignature, "invalid signature"},
		{KindNotImplemented, "not implemented"},
		{KindCancelled, "token cancelled"},
		{KindTimeout, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindTimeout, "op", nil); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := sterrors.New("boom")
	err := Wrap(KindEndOfStream, "wire.ReadByte", cause)

	if !sterrors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if !IsKind(err, KindEndOfStream) {
		t.Error("IsKind should match the wrapped kind")
	}
	if KindOf(err) != KindEndOfStream {
		t.Errorf("KindOf = %v, want KindEndOfStream", KindOf(err))
	}
}

func TestWrapThroughFmt(t *testing.T) {
	inner := New(KindInvalidSignature, "envelope.Parse", "digest mismatch")
	outer := fmt.Errorf("handling request: %w", inner)

	if !IsKind(outer, KindInvalidSignature) {
		t.Error("IsKind should unwrap through fmt.Errorf")
	}
}

func TestNormalize(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		if Normalize("op", nil) != nil {
			t.Error("Normalize(nil) should be nil")
		}
	})

	t.Run("foreign error becomes unknown", func(t *testing.T) {
		err := Normalize("webhook.handle", sterrors.New("connection reset"))
		if KindOf(err) != KindUnknown {
			t.Errorf("KindOf = %v, want KindUnknown", KindOf(err))
		}
	})

	t.Run("typed error unchanged", func(t *testing.T) {
		orig := New(KindTimeout, "webhook.listen", "deadline exceeded")
		if got := Normalize("other", orig); got != orig {
			t.Errorf("Normalize rewrapped a typed error: %v", got)
		}
	})
}

func TestErrorMessageShape(t *testing.T) {
	err := New(KindInvalidArgument, "address.Parse", "bad port %q", "99")
	want := `courier: address.Parse: bad port "99"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
