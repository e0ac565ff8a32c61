package device

import (
	"testing"
	"time"
)

func TestQueue_FillPadsWithSilence(t *testing.T) {
	t.Parallel()
	q := newQueue()
	q.write([]byte{1, 2, 3})

	out := []byte{9, 9, 9, 9, 9}
	q.fill(out)
	want := []byte{1, 2, 3, 0, 0}
	if string(out) != string(want) {
		t.Errorf("fill = %v, want %v", out, want)
	}
	select {
	case <-q.drained:
		t.Fatal("drained before finish")
	default:
	}
}

func TestQueue_DrainedAfterFinish(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		setup func(q *queue)
	}{
		{
			name:  "finish with empty buffer",
			setup: func(q *queue) { q.finish() },
		},
		{
			name: "finish then fill",
			setup: func(q *queue) {
				q.write([]byte{1, 2, 3, 4})
				q.finish()
				q.fill(make([]byte, 2))
				q.fill(make([]byte, 2))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := newQueue()
			tt.setup(q)
			select {
			case <-q.drained:
			case <-time.After(time.Second):
				t.Fatal("queue never drained")
			}
			// Further callbacks are harmless.
			q.fill(make([]byte, 4))
			q.finish()
		})
	}
}

func TestQueue_NotDrainedWhileBuffered(t *testing.T) {
	t.Parallel()
	q := newQueue()
	q.write([]byte{1, 2, 3, 4})
	q.finish()
	q.fill(make([]byte, 2))
	select {
	case <-q.drained:
		t.Fatal("drained with audio still buffered")
	default:
	}
}
