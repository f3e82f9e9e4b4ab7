package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRevisionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "revision conflict", err: ErrRevisionConflict, want: true},
		{name: "wrapped revision conflict", err: fmt.Errorf("update cart: %w", ErrRevisionConflict), want: true},
		{name: "other error", err: ErrOrderNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRevisionConflict(tt.err); got != tt.want {
				t.Errorf("IsRevisionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "order not found", err: ErrOrderNotFound, want: true},
		{name: "record not found", err: errors.Join(ErrRecordNotFound, errors.New("id 7")), want: true},
		{name: "fetch failed", err: ErrFetchFailed, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}
