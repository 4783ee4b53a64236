package notify

import "testing"

func TestResolveDryRun(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name       string
		in         DryRunInputs
		wantDry    bool
		wantSource DryRunSource
	}{
		{
			name:       "nothing set",
			in:         DryRunInputs{Host: "shop.example.com", LoopbackAutoDetect: true},
			wantDry:    false,
			wantSource: DryRunFromNone,
		},
		{
			name:       "loopback host",
			in:         DryRunInputs{Host: "localhost:8080", LoopbackAutoDetect: true},
			wantDry:    true,
			wantSource: DryRunFromLoopback,
		},
		{
			name:       "loopback detection disabled",
			in:         DryRunInputs{Host: "127.0.0.1:8080"},
			wantDry:    false,
			wantSource: DryRunFromNone,
		},
		{
			name:       "config beats loopback",
			in:         DryRunInputs{Config: &no, Host: "localhost", LoopbackAutoDetect: true},
			wantDry:    false,
			wantSource: DryRunFromConfig,
		},
		{
			name:       "session beats config",
			in:         DryRunInputs{Session: &yes, Config: &no},
			wantDry:    true,
			wantSource: DryRunFromSession,
		},
		{
			name:       "request beats session",
			in:         DryRunInputs{Request: &no, Session: &yes, Config: &yes, Host: "localhost", LoopbackAutoDetect: true},
			wantDry:    false,
			wantSource: DryRunFromRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dry, src := ResolveDryRun(tt.in)
			if dry != tt.wantDry {
				t.Errorf("dry = %v, want %v", dry, tt.wantDry)
			}
			if src != tt.wantSource {
				t.Errorf("source = %q, want %q", src, tt.wantSource)
			}
		})
	}
}

func TestIsLoopbackHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST:3000", true},
		{"shop.localhost", true},
		{"127.0.0.1", true},
		{"127.0.0.53:80", true},
		{"[::1]:8080", true},
		{"::1", true},
		{"", false},
		{"example.com", false},
		{"10.0.0.1:8080", false},
		{"localhost.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := IsLoopbackHost(tt.host); got != tt.want {
				t.Errorf("IsLoopbackHost(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}
