package util

import "testing"

func TestMatchFields(t *testing.T) {
	tests := []struct {
		patterns string
		field    string
		want     bool
	}{
		{"*", "user.name", true},
		{"", "anything", true},
		{"_all", "a", true},
		{"status", "status", true},
		{"status", "status.keyword", false},
		{"user.*", "user.name", true},
		{"user.*", "username", false},
		{"title, user.*", "user.id", true},
		{"title,body", "summary", false},
		{"sku?", "sku1", true},
	}
	for _, tt := range tests {
		if got := MatchFields(tt.patterns, tt.field); got != tt.want {
			t.Errorf("MatchFields(%q, %q) = %v, want %v", tt.patterns, tt.field, got, tt.want)
		}
	}
}
