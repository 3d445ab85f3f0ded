package audiocap

import "testing"

func TestLoopbackPattern(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Microphone (Realtek Audio)", false},
		{"Speakers (Realtek Audio)", true},
		{"Stereo Mix", true},
		{"What U Hear", true},
		{"USB Loopback Input", true},
		{"Headset Microphone", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loopbackPattern.MatchString(tt.name); got != tt.want {
				t.Errorf("loopbackPattern.MatchString(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
