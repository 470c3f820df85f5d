package hls

import (
	"bytes"
	"fmt"
	"path"
	"strings"
)

// DefaultHeaderLines is the number of preamble lines, #EXTM3U included, before
// the first #EXTINF/name pair: #EXTM3U, #EXT-X-VERSION, #EXT-X-TARGETDURATION
// and #EXT-X-MEDIA-SEQUENCE. Producers with a different preamble need a
// different Parser.HeaderLines.
const DefaultHeaderLines = 4

const (
	tagHeader  = "#EXTM3U"
	tagInf     = "#EXTINF"
	tagEndList = "#EXT-X-ENDLIST"
)

// SegmentRef is one segment entry of a playlist. Index is its 0-based position
// in the playlist and the only order used for assembly.
type SegmentRef struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ResolvedSegment is a SegmentRef with its absolute fetch address.
type ResolvedSegment struct {
	SegmentRef
	Address string `json:"address"`
}

// Playlist is the parsed form of a media playlist. Base is the address the
// playlist was loaded from; segment names are relative to its directory.
// A Playlist is not modified after Parse returns it.
type Playlist struct {
	Base     string
	Segments []SegmentRef
}

// Len returns the number of segments.
func (p *Playlist) Len() int { return len(p.Segments) }

// Ext returns the file extension shared by the segments, taken from the first
// segment name with any query string removed. Playlists whose names carry no
// extension yield ".ts".
func (p *Playlist) Ext() string {
	if len(p.Segments) == 0 {
		return ".ts"
	}
	name := p.Segments[0].Name
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ext := path.Ext(name); ext != "" {
		return ext
	}
	return ".ts"
}

// Parser turns playlist bytes into a Playlist.
type Parser struct {
	// HeaderLines is the number of preamble lines, #EXTM3U included.
	// Values below 1 are treated as DefaultHeaderLines.
	HeaderLines int
}

// NewParser returns a Parser expecting headerLines preamble lines.
func NewParser(headerLines int) *Parser {
	return &Parser{HeaderLines: headerLines}
}

// Parse reads a playlist loaded from base. Blank lines are dropped before any
// counting. The document must start with #EXTM3U; the preamble is HeaderLines
// tag lines in total, followed by #EXTINF/segment name pairs. A trailing
// #EXT-X-ENDLIST is allowed. On any deviation Parse returns a
// *MalformedPlaylistError and no Playlist.
func (p *Parser) Parse(base string, data []byte) (*Playlist, error) {
	headerLines := p.HeaderLines
	if headerLines < 1 {
		headerLines = DefaultHeaderLines
	}

	lines := nonBlankLines(data)
	if len(lines) == 0 {
		return nil, &MalformedPlaylistError{Reason: "empty document"}
	}
	if !strings.HasPrefix(lines[0], tagHeader) {
		return nil, &MalformedPlaylistError{Line: 1, Reason: "missing " + tagHeader + " header"}
	}

	body := headerLines
	if len(lines) < body {
		return nil, &MalformedPlaylistError{
			Reason: fmt.Sprintf("expected %d header lines, document has %d lines", headerLines, len(lines)),
		}
	}
	for i := 1; i < body; i++ {
		if !strings.HasPrefix(lines[i], "#") || strings.HasPrefix(lines[i], tagInf) {
			return nil, &MalformedPlaylistError{
				Line:   i + 1,
				Reason: fmt.Sprintf("expected header tag, got %q (header line count %d does not match document)", lines[i], headerLines),
			}
		}
	}

	rest := lines[body:]
	if n := len(rest); n > 0 && rest[n-1] == tagEndList {
		rest = rest[:n-1]
	}
	if len(rest) == 0 {
		return nil, &MalformedPlaylistError{Reason: "no segment entries"}
	}
	if len(rest)%2 != 0 {
		return nil, &MalformedPlaylistError{
			Line:   body + len(rest),
			Reason: "metadata line without segment name",
		}
	}

	segments := make([]SegmentRef, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		meta, name := rest[i], rest[i+1]
		lineNo := body + i + 1
		if !strings.HasPrefix(meta, tagInf) {
			return nil, &MalformedPlaylistError{Line: lineNo, Reason: fmt.Sprintf("expected %s line, got %q", tagInf, meta)}
		}
		if strings.HasPrefix(name, "#") {
			return nil, &MalformedPlaylistError{Line: lineNo + 1, Reason: fmt.Sprintf("expected segment name, got %q", name)}
		}
		segments = append(segments, SegmentRef{Index: len(segments), Name: name})
	}

	return &Playlist{Base: base, Segments: segments}, nil
}

func nonBlankLines(data []byte) []string {
	var out []string
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
