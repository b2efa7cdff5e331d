package cluster

import "testing"

func TestIsFeedback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"greeting", "Hello there", true},
		{"gratitude", "thanks so much, that was helpful", true},
		{"understanding", "oh I get it now", true},
		{"makes sense", "that makes sense", true},
		{"short ack", "ok", true},
		{"short ack punctuated", "got it!", true},
		{"short exclamation", "wow amazing!", true},
		{"question", "What is a derivative?", false},
		{"how question", "how does photosynthesis work", false},
		{"short but interrogative", "how?!", false},
		{"imperative", "explain recursion to me", false},
		{"statement query", "I need help with quadratic equations", false},
		{"long exclamation is a query", "solve this integral for me right now!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFeedback(tt.text); got != tt.want {
				t.Errorf("IsFeedback(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
