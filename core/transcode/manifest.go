package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// MasterPlaylistName is the top-level playlist written once every
	// tier of a job has encoded successfully.
	MasterPlaylistName = "master.m3u8"

	// TierPlaylistName is the per-tier sub-manifest the encoder writes
	// alongside its numbered segment files.
	TierPlaylistName = "playlist.m3u8"

	// SegmentPattern names the numbered segment files within a tier
	// directory, zero-based and gap-free.
	SegmentPattern = "segment%03d.ts"
)

// Tier is one bitrate rendition of the ladder. Name doubles as the tier
// subdirectory name; Bandwidth is the approximate bits-per-second value
// advertised in the master playlist.
type Tier struct {
	Name      string
	Bandwidth int
}

// ParseLadder converts bitrate names like "64k" or "128000" into Tiers,
// validating that bandwidths are strictly ascending.
func ParseLadder(names []string) ([]Tier, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("bitrate ladder is empty")
	}
	tiers := make([]Tier, 0, len(names))
	prev := 0
	for _, name := range names {
		bw, err := parseBitrate(name)
		if err != nil {
			return nil, err
		}
		if bw <= prev {
			return nil, fmt.Errorf("bitrate ladder must be strictly ascending, got %q after %d bps", name, prev)
		}
		prev = bw
		tiers = append(tiers, Tier{Name: name, Bandwidth: bw})
	}
	return tiers, nil
}

func parseBitrate(name string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return 0, fmt.Errorf("empty bitrate name")
	}
	mult := 1
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1000000
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bitrate name %q", name)
	}
	return n * mult, nil
}

// WriteMasterPlaylist writes the master playlist into dir, listing each
// tier's sub-manifest in the given (ascending) order with its approximate
// bandwidth.
func WriteMasterPlaylist(dir string, tiers []Tier) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, tier := range tiers {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=audio\n%s/%s\n",
			tier.Bandwidth, tier.Name, TierPlaylistName)
	}

	path := filepath.Join(dir, MasterPlaylistName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write master playlist %s: %w", path, err)
	}
	return nil
}
