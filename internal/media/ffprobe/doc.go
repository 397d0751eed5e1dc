// Package ffprobe runs ffprobe and decodes its JSON report.
//
// Only the fields the tag reader needs are decoded: container and stream
// tags, codec type, duration and bitrate.
package ffprobe
