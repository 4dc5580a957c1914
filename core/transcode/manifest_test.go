package transcode_test

import (
	"os"
	"path/filepath"
	"testing"

	"torb/core/transcode"
)

func TestParseLadder(t *testing.T) {
	tiers, err := transcode.ParseLadder([]string{"64k", "128k", "256k"})
	if err != nil {
		t.Fatalf("ParseLadder returned error: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	wantBW := []int{64000, 128000, 256000}
	for i, tier := range tiers {
		if tier.Bandwidth != wantBW[i] {
			t.Fatalf("tier %d: got bandwidth %d, want %d", i, tier.Bandwidth, wantBW[i])
		}
	}
	if tiers[0].Name != "64k" {
		t.Fatalf("tier name should keep its spelling, got %q", tiers[0].Name)
	}
}

func TestParseLadderAcceptsPlainAndMegaSuffixes(t *testing.T) {
	tiers, err := transcode.ParseLadder([]string{"96000", "1m"})
	if err != nil {
		t.Fatalf("ParseLadder returned error: %v", err)
	}
	if tiers[0].Bandwidth != 96000 || tiers[1].Bandwidth != 1000000 {
		t.Fatalf("unexpected bandwidths: %d, %d", tiers[0].Bandwidth, tiers[1].Bandwidth)
	}
}

func TestParseLadderRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		names []string
	}{
		{"empty ladder", nil},
		{"descending", []string{"128k", "64k"}},
		{"equal", []string{"128k", "128k"}},
		{"not a number", []string{"64k", "fastk"}},
		{"zero", []string{"0k"}},
		{"negative", []string{"-64k"}},
		{"blank entry", []string{"64k", ""}},
	}
	for _, tc := range cases {
		if _, err := transcode.ParseLadder(tc.names); err == nil {
			t.Fatalf("%s: expected error for %v", tc.name, tc.names)
		}
	}
}

func TestWriteMasterPlaylist(t *testing.T) {
	dir := t.TempDir()
	tiers, err := transcode.ParseLadder([]string{"64k", "128k", "256k"})
	if err != nil {
		t.Fatalf("ParseLadder returned error: %v", err)
	}

	if err := transcode.WriteMasterPlaylist(dir, tiers); err != nil {
		t.Fatalf("WriteMasterPlaylist returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, transcode.MasterPlaylistName))
	if err != nil {
		t.Fatalf("reading master playlist: %v", err)
	}

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=64000,RESOLUTION=audio\n64k/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=128000,RESOLUTION=audio\n128k/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=256000,RESOLUTION=audio\n256k/playlist.m3u8\n"
	if string(data) != want {
		t.Fatalf("master playlist mismatch:\ngot:\n%s\nwant:\n%s", data, want)
	}
}
