package store

import (
	"context"
	"errors"
	"testing"
)

func TestGetField(t *testing.T) {
	tests := []struct {
		name    string
		setup   bool
		wantErr error
	}{
		{name: "found", setup: true},
		{name: "not found", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()

			if tt.setup {
				if err := s.SetField(ctx, FieldModuleKey, "1700000000123456"); err != nil {
					t.Fatalf("SetField: %v", err)
				}
			}

			got, err := s.GetField(ctx, FieldModuleKey)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetField: %v", err)
			}
			if got != "1700000000123456" {
				t.Errorf("GetField = %q, want 1700000000123456", got)
			}
		})
	}
}

func TestSetFieldOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"first", "second"} {
		if err := s.SetField(ctx, "name", v); err != nil {
			t.Fatalf("SetField(%q): %v", v, err)
		}
	}

	got, err := s.GetField(ctx, "name")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if got != "second" {
		t.Errorf("GetField = %q, want second", got)
	}
}

func TestSetFieldIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.SetFieldIfAbsent(ctx, FieldModuleKey, "111")
	if err != nil {
		t.Fatalf("first SetFieldIfAbsent: %v", err)
	}
	if got != "111" {
		t.Errorf("first SetFieldIfAbsent = %q, want 111", got)
	}

	got, err = s.SetFieldIfAbsent(ctx, FieldModuleKey, "222")
	if err != nil {
		t.Fatalf("second SetFieldIfAbsent: %v", err)
	}
	if got != "111" {
		t.Errorf("second SetFieldIfAbsent = %q, want existing 111", got)
	}
}
