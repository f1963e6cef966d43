// Package telemetry models MCU sensor snapshots and parses them from the
// serial byte stream.
//
// # Wire Format
//
// The MCU sends ASCII frames:
//
//	H<field0>,<field1>,...,<fieldN>,F
//
// Fields are decimal text. There is no checksum, length prefix or escaping.
// Frames may arrive split across any number of reads, so the Parser is a
// byte-level state machine whose state persists between Write calls.
//
// # Channel Layout
//
// Each frame fills a Snapshot whose channels (voltage[6], current[6] and
// temperature[4] by default) have fixed slot counts. Every channel keeps its
// own write counter. With FieldOrderInterleaved the fields rotate across the
// channels that still have room, so "H1,2,3,F" sets the first voltage,
// current and temperature slots. With FieldOrderSequential each channel is
// filled completely before the next.
//
// # Error Recovery
//
// Parse problems never abort the stream. Non-numeric fields read as zero,
// surplus fields are dropped and oversized frames are discarded. Each case is
// counted in ParserStats and reported to the optional error callback.
//
// Thread Safety: a Parser must be fed from a single goroutine. Stats and the
// callback setters are safe to call concurrently.
package telemetry
