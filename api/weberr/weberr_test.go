package weberr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResponseThroughWrapping(t *testing.T) {
	base := errors.New("course[c1] in cart")
	err := fmt.Errorf("adding: %w", Conflict(base, "Course already in cart"))

	body, status, ok := Response(err)
	if !ok {
		t.Fatal("expected a response")
	}
	if status != http.StatusConflict {
		t.Fatalf("expected %d, got %d", http.StatusConflict, status)
	}
	if diff := cmp.Diff(&ErrorResponse{Error: "Course already in cart"}, body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected the cause to stay reachable")
	}

	if _, _, ok := Response(base); ok {
		t.Fatal("expected no response for a plain error")
	}
}

func TestFields(t *testing.T) {
	err := InternalError(errors.New("boom"),
		WithFields(map[string]interface{}{"order_id": "o1", "step": "inner"}),
	)
	err = Wrap(err, WithFields(map[string]interface{}{"step": "outer"}))

	got, ok := Fields(err)
	if !ok {
		t.Fatal("expected fields")
	}
	want := map[string]interface{}{"order_id": "o1", "step": "outer"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}
