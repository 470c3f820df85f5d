package hls

import (
	"fmt"
	"strings"
)

// Resolve joins a segment name onto the directory of base, the address the
// playlist was loaded from. It performs no network access and no URL
// normalisation: "https://cdn/x/index.m3u8" + "seg1.ts" is
// "https://cdn/x/seg1.ts".
func Resolve(base, name string) (string, error) {
	i := strings.LastIndex(base, "/")
	if i < 0 {
		return "", fmt.Errorf("%w: %q has no path separator", ErrMalformedLocation, base)
	}
	return base[:i] + "/" + name, nil
}

// ResolveAll resolves every segment of pl in playlist order.
func ResolveAll(pl *Playlist) ([]ResolvedSegment, error) {
	out := make([]ResolvedSegment, len(pl.Segments))
	for i, ref := range pl.Segments {
		addr, err := Resolve(pl.Base, ref.Name)
		if err != nil {
			return nil, err
		}
		out[i] = ResolvedSegment{SegmentRef: ref, Address: addr}
	}
	return out, nil
}
