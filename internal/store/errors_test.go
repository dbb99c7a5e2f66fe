package store

import (
	"fmt"
	"testing"
)

func TestTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrConflict, true},
		{fmt.Errorf("create counter: %w", ErrConflict), true},
		{ErrUnavailable, true},
		{ErrQueueFull, false},
		{ErrRoomNotAvailable, false},
		{nil, false},
	}
	for _, tt := range cases {
		if got := Transient(tt.err); got != tt.want {
			t.Fatalf("Transient(%v)=%v, want %v", tt.err, got, tt.want)
		}
	}
}
