package shared

import "testing"

func TestSanitizeQuery(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "Blue Monday",
			want: "Blue Monday",
		},
		{
			name: "parenthesized segment removed",
			in:   "Song (Remastered 2011)",
			want: "Song",
		},
		{
			name: "bracketed segment removed",
			in:   "Track [Live at Wembley]",
			want: "Track",
		},
		{
			name: "symbols become spaces",
			in:   "AC/DC: Back*In&Black!",
			want: "AC DC Back In Black",
		},
		{
			name: "apostrophes and hyphens kept",
			in:   "Don't Stop Me Now - Remix",
			want: "Don't Stop Me Now - Remix",
		},
		{
			name: "whitespace runs collapsed",
			in:   "Too    many     spaces",
			want: "Too many spaces",
		},
		{
			name: "unicode letters kept",
			in:   "Café Tacvba",
			want: "Café Tacvba",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeQuery(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}

			if again := SanitizeQuery(got); again != got {
				t.Errorf("SanitizeQuery not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "artist precedes title",
			title:  "Blue Monday",
			artist: "New Order",
			want:   "New Order Blue Monday",
		},
		{
			name:   "noise stripped from both fields",
			title:  "Song (feat. Someone)",
			artist: "Artist [Official]",
			want:   "Artist Song",
		},
		{
			name:   "empty artist",
			title:  "Instrumental",
			artist: "",
			want:   "Instrumental",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSearchQuery(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("BuildSearchQuery(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.want)
			}
		})
	}
}
