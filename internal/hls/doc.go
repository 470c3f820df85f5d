// Package hls turns an HLS media playlist into a single artifact file.
//
// A run parses the playlist, resolves every segment against the playlist
// location, fetches the segments concurrently with bounded retries, stores
// them in a per-playlist scratch area and concatenates them strictly in
// playlist order. Assembly is all-or-nothing: a segment that cannot be
// fetched fails the whole playlist and no artifact is written.
package hls
