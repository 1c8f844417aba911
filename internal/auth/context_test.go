package auth

import (
	"context"
	"testing"
)

func TestPrincipalRoundTrip(t *testing.T) {
	p := Principal{UserID: 42, Email: "alice@example.com", SessionID: "sess-abc"}
	ctx := WithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got != p {
		t.Errorf("got %+v, want %+v", got, p)
	}
	if UserID(ctx) != 42 {
		t.Errorf("UserID = %d, want 42", UserID(ctx))
	}
	if SessionID(ctx) != "sess-abc" {
		t.Errorf("SessionID = %q, want sess-abc", SessionID(ctx))
	}
}

func TestPrincipalMissing(t *testing.T) {
	ctx := context.Background()

	if _, ok := PrincipalFromContext(ctx); ok {
		t.Error("expected no principal in empty context")
	}
	if UserID(ctx) != 0 {
		t.Errorf("UserID = %d, want 0", UserID(ctx))
	}
	if SessionID(ctx) != "" {
		t.Errorf("SessionID = %q, want empty", SessionID(ctx))
	}
}
