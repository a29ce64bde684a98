package notify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestQueueKeepsMostRecent(t *testing.T) {
	q := NewQueue(2)
	Info(q, "one")
	Success(q, "two")
	Error(q, "three")

	want := []Notice{
		{Level: LevelSuccess, Message: "two"},
		{Level: LevelError, Message: "three"},
	}
	if diff := cmp.Diff(want, q.Drain(), cmpopts.IgnoreFields(Notice{}, "At")); diff != "" {
		t.Fatalf("drained notices mismatch (-want +got):\n%s", diff)
	}
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("expected empty queue after drain, got %v", got)
	}
}

func TestFanoutAndLog(t *testing.T) {
	log, hook := test.NewNullLogger()
	q := NewQueue(10)

	Error(Fanout{NewLog(log), q}, "Failed to add to cart")

	if n := len(q.Drain()); n != 1 {
		t.Fatalf("expected queue to receive the notice, got %d", n)
	}
	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || e.Message != "Failed to add to cart" {
		t.Fatalf("unexpected log entry %+v", e)
	}
}

func TestNilNotifier(t *testing.T) {
	Info(nil, "ignored")
}
