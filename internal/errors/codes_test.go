package errors

import "testing"

func TestCodeForCoversEveryKind(t *testing.T) {
	kinds := []Kind{
		KindUnknown, KindInvalidArgument, KindResourceDisposed,
		KindEndOfStream, KindUnsupported, KindInvalidSignature,
		KindNotImplemented, KindCancelled, KindTimeout,
	}
	seen := make(map[Code]Kind, len(kinds))
	for _, k := range kinds {
		c := CodeFor(k)
		if c == 0 {
			t.Errorf("CodeFor(%v) = 0, want a registered code", k)
		}
		if prev, dup := seen[c]; dup {
			t.Errorf("code %d assigned to both %v and %v", c, prev, k)
		}
		seen[c] = k
	}
}

func TestDescribeKnownCode(t *testing.T) {
	if got := Describe(CodeEndOfStream); got == "" {
		t.Error("Describe(CodeEndOfStream) returned empty description")
	}
	if got := Describe(Code(4242)); got != "" {
		t.Errorf("Describe(unregistered) = %q, want empty", got)
	}
}

func TestRegisterCode(t *testing.T) {
	t.Run("reserved range rejected", func(t *testing.T) {
		if err := RegisterCode(Code(1500), "custom"); err == nil {
			t.Error("RegisterCode below 2000 should fail")
		}
	})

	t.Run("custom code round trips", func(t *testing.T) {
		const c = Code(2001)
		if err := RegisterCode(c, "application specific"); err != nil {
			t.Fatalf("RegisterCode: %v", err)
		}
		if got := Describe(c); got != "application specific" {
			t.Errorf("Describe = %q", got)
		}
		if err := RegisterCode(c, "again"); err == nil {
			t.Error("re-registering the same code should fail")
		}
	})
}
