package bus

import (
	"errors"
	"testing"

	"github.com/tendant/simple-curator/pkg/schema"
)

type fakePublisher struct {
	subjects []string
	values   []any
	err      error
}

func (f *fakePublisher) PublishJSON(subject string, v any) error {
	f.subjects = append(f.subjects, subject)
	f.values = append(f.values, v)
	return f.err
}

func TestNotifyPublishesPerStatus(t *testing.T) {
	pub := &fakePublisher{}
	n := NewEventNotifier(pub, "curator.jobs", nil)

	n.Notify(schema.JobEvent{JobID: "ab12cd34", Status: schema.JobStatusRunning})
	n.Notify(schema.JobEvent{JobID: "ab12cd34", Status: schema.JobStatusDone})

	if len(pub.subjects) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.subjects))
	}
	if pub.subjects[0] != "curator.jobs.running" || pub.subjects[1] != "curator.jobs.done" {
		t.Fatalf("unexpected subjects: %v", pub.subjects)
	}
	evt, ok := pub.values[1].(schema.JobEvent)
	if !ok || evt.JobID != "ab12cd34" {
		t.Fatalf("unexpected payload: %#v", pub.values[1])
	}
}

func TestNotifySwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	n := NewEventNotifier(pub, "curator.jobs", nil)
	n.Notify(schema.JobEvent{JobID: "x", Status: schema.JobStatusFailed})
	if len(pub.subjects) != 1 {
		t.Fatalf("expected publish attempt, got %d", len(pub.subjects))
	}
}
