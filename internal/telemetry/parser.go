package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Frame protocol bytes.
const (
	StartMarker byte = 'H'
	Delimiter   byte = ','
	EndMarker   byte = 'F'
)

// DefaultMaxFrameBytes bounds a frame when ParserOptions leaves it unset.
// A full default frame is about 100 bytes.
const DefaultMaxFrameBytes = 512

// FieldOrder selects how consecutive fields are assigned to channels.
type FieldOrder string

const (
	// FieldOrderInterleaved rotates fields across channels that still have
	// free slots: field 0 to channel 0, field 1 to channel 1, and so on.
	FieldOrderInterleaved FieldOrder = "interleaved"

	// FieldOrderSequential fills channel 0 completely, then channel 1.
	FieldOrderSequential FieldOrder = "sequential"
)

// FieldFormat selects how a field's text maps to a channel slot.
type FieldFormat string

const (
	// FieldFormatPlain fields carry a bare number; FieldOrder picks the slot.
	FieldFormatPlain FieldFormat = "plain"

	// FieldFormatIndexed fields carry "<slot>-<value>", and a channel tag
	// letter in front of a field switches the group, as the board firmware
	// prints them: "Hv0-3.30,1-3.31,c0-0.10,t0-21.5,F".
	FieldFormatIndexed FieldFormat = "indexed"
)

// ParserOptions configures a Parser.
type ParserOptions struct {
	// Layout is the channel layout frames decode into. Defaults to DefaultLayout.
	Layout Layout

	// FieldOrder defaults to FieldOrderInterleaved. Ignored for indexed fields.
	FieldOrder FieldOrder

	// FieldFormat defaults to FieldFormatPlain.
	FieldFormat FieldFormat

	// MaxFrameBytes is the largest frame body accepted after the start
	// marker. Defaults to DefaultMaxFrameBytes.
	MaxFrameBytes int
}

// ParserStats holds parser counters.
type ParserStats struct {
	BytesIn         uint64 `json:"bytes_in"`
	BytesDiscarded  uint64 `json:"bytes_discarded"`
	FramesEmitted   uint64 `json:"frames_emitted"`
	FramesRestarted uint64 `json:"frames_restarted"`
	FramesOversize  uint64 `json:"frames_oversize"`
	MalformedFields uint64 `json:"malformed_fields"`
	OverflowFields  uint64 `json:"overflow_fields"`
}

// Parser extracts Snapshots from the MCU byte stream.
//
// Parser implements io.Writer so a serial read loop can copy straight into it.
type Parser struct {
	layout        Layout
	order         FieldOrder
	format        FieldFormat
	tags          map[byte]int
	maxFrameBytes int

	// Frame state, owned by the goroutine calling Write.
	active     bool
	fieldIndex int
	acc        []byte
	frameBytes int
	fill       []int
	cursor     int
	group      int
	frame      Snapshot

	callbackMu sync.RWMutex
	onFrame    func(Snapshot)
	onError    func(error)

	bytesIn         atomic.Uint64
	bytesDiscarded  atomic.Uint64
	framesEmitted   atomic.Uint64
	framesRestarted atomic.Uint64
	framesOversize  atomic.Uint64
	malformedFields atomic.Uint64
	overflowFields  atomic.Uint64
}

// NewParser creates a Parser with the given options.
func NewParser(opts ParserOptions) (*Parser, error) {
	if opts.Layout == nil {
		opts.Layout = DefaultLayout()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	switch opts.FieldOrder {
	case "":
		opts.FieldOrder = FieldOrderInterleaved
	case FieldOrderInterleaved, FieldOrderSequential:
	default:
		return nil, fmt.Errorf("telemetry: unknown field order %q", opts.FieldOrder)
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}

	layout := make(Layout, len(opts.Layout))
	copy(layout, opts.Layout)

	var tags map[byte]int
	switch opts.FieldFormat {
	case "":
		opts.FieldFormat = FieldFormatPlain
	case FieldFormatPlain:
	case FieldFormatIndexed:
		var err error
		if tags, err = groupTags(layout); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("telemetry: unknown field format %q", opts.FieldFormat)
	}

	return &Parser{
		layout:        layout,
		order:         opts.FieldOrder,
		format:        opts.FieldFormat,
		tags:          tags,
		maxFrameBytes: opts.MaxFrameBytes,
		fill:          make([]int, len(layout)),
		group:         -1,
		acc:           make([]byte, 0, 16),
	}, nil
}

// groupTags maps each channel's tag letter to its layout index.
func groupTags(layout Layout) (map[byte]int, error) {
	tags := make(map[byte]int, len(layout))
	for i, ch := range layout {
		tag := ch.GroupTag()
		if !isTagLetter(tag) {
			return nil, fmt.Errorf("%w: channel %q has unusable tag %q", ErrInvalidLayout, ch.Name, tag)
		}
		if prev, dup := tags[tag]; dup {
			return nil, fmt.Errorf("%w: channels %q and %q share tag %q",
				ErrInvalidLayout, layout[prev].Name, ch.Name, tag)
		}
		tags[tag] = i
	}
	return tags, nil
}

// isTagLetter reports whether b can open a group without being mistaken
// for a frame marker.
func isTagLetter(b byte) bool {
	if b == StartMarker || b == EndMarker {
		return false
	}
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Layout returns the channel layout frames decode into.
func (p *Parser) Layout() Layout {
	out := make(Layout, len(p.layout))
	copy(out, p.layout)
	return out
}

// SetOnFrame sets the callback invoked with every completed frame.
// The callback runs on the goroutine calling Write and owns the Snapshot.
func (p *Parser) SetOnFrame(fn func(Snapshot)) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.onFrame = fn
}

// SetOnError sets the callback invoked for every recovered parse error.
func (p *Parser) SetOnError(fn func(error)) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.onError = fn
}

// Write feeds a chunk of the byte stream to the parser.
//
// The chunk may end anywhere, including mid-field; state carries over to
// the next call. Write never fails and always reports len(chunk).
func (p *Parser) Write(chunk []byte) (int, error) {
	p.bytesIn.Add(uint64(len(chunk)))
	for _, b := range chunk {
		p.feed(b)
	}
	return len(chunk), nil
}

// Reset discards any partial frame.
func (p *Parser) Reset() {
	p.active = false
	p.clearField()
}

// Stats returns a copy of the parser counters.
func (p *Parser) Stats() ParserStats {
	return ParserStats{
		BytesIn:         p.bytesIn.Load(),
		BytesDiscarded:  p.bytesDiscarded.Load(),
		FramesEmitted:   p.framesEmitted.Load(),
		FramesRestarted: p.framesRestarted.Load(),
		FramesOversize:  p.framesOversize.Load(),
		MalformedFields: p.malformedFields.Load(),
		OverflowFields:  p.overflowFields.Load(),
	}
}

func (p *Parser) feed(b byte) {
	if b == StartMarker {
		if p.active {
			p.framesRestarted.Add(1)
		}
		p.begin()
		return
	}

	if !p.active {
		p.bytesDiscarded.Add(1)
		return
	}

	if b == EndMarker {
		if len(p.acc) > 0 {
			p.flushField()
		}
		p.emit()
		return
	}

	p.frameBytes++
	if p.frameBytes > p.maxFrameBytes {
		p.framesOversize.Add(1)
		p.reportError(fmt.Errorf("%w: exceeded %d bytes", ErrFrameTooLarge, p.maxFrameBytes))
		p.Reset()
		return
	}

	if b == Delimiter {
		p.flushField()
		return
	}
	p.acc = append(p.acc, b)
}

// begin starts a fresh frame with zeroed readings.
func (p *Parser) begin() {
	p.active = true
	p.clearField()
	p.frame = NewSnapshot(p.layout)
}

func (p *Parser) clearField() {
	p.fieldIndex = 0
	p.acc = p.acc[:0]
	p.frameBytes = 0
	p.cursor = 0
	p.group = -1
	for i := range p.fill {
		p.fill[i] = 0
	}
}

// flushField stores the accumulated field in its slot.
func (p *Parser) flushField() {
	text := strings.TrimSpace(string(p.acc))
	index := p.fieldIndex
	p.fieldIndex++
	p.acc = p.acc[:0]

	if p.format == FieldFormatIndexed {
		p.storeIndexed(index, text)
		return
	}

	ch, ok := p.nextChannel()
	if !ok {
		p.overflowFields.Add(1)
		p.reportError(fmt.Errorf("%w: field %d", ErrFieldOverflow, index))
		return
	}

	value, ok := parseValue(text)
	if !ok {
		p.malformed(index, text)
	}

	name := p.layout[ch].Name
	p.frame.Values[name][p.fill[ch]] = value
	p.fill[ch]++
	p.frame.Selection[name] = true
}

// storeIndexed decodes a "[tag]<slot>-<value>" field. A field that names
// no usable slot is dropped; a bad value still lands as 0.
func (p *Parser) storeIndexed(index int, text string) {
	raw := text
	if text != "" {
		if ch, ok := p.tags[text[0]]; ok {
			p.group = ch
			text = text[1:]
		}
	}
	if p.group < 0 {
		p.malformed(index, raw)
		return
	}

	slotText, valueText, found := strings.Cut(text, "-")
	slot, err := strconv.Atoi(strings.TrimSpace(slotText))
	if !found || err != nil || slot < 0 {
		p.malformed(index, raw)
		return
	}

	spec := p.layout[p.group]
	if slot >= spec.Size {
		p.overflowFields.Add(1)
		p.reportError(fmt.Errorf("%w: field %d %s[%d]", ErrFieldOverflow, index, spec.Name, slot))
		return
	}

	value, ok := parseValue(strings.TrimSpace(valueText))
	if !ok {
		p.malformed(index, raw)
	}
	p.frame.Values[spec.Name][slot] = value
	p.frame.Selection[spec.Name] = true
}

func (p *Parser) malformed(index int, text string) {
	p.malformedFields.Add(1)
	p.reportError(fmt.Errorf("%w: field %d %q", ErrMalformedField, index, text))
}

// parseValue reads a finite reading. Anything else reads as 0.
func parseValue(text string) (float64, bool) {
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// nextChannel returns the channel that receives the next field.
func (p *Parser) nextChannel() (int, bool) {
	n := len(p.layout)
	switch p.order {
	case FieldOrderSequential:
		for i := 0; i < n; i++ {
			if p.fill[i] < p.layout[i].Size {
				return i, true
			}
		}
	default:
		for k := 0; k < n; k++ {
			i := (p.cursor + k) % n
			if p.fill[i] < p.layout[i].Size {
				p.cursor = (i + 1) % n
				return i, true
			}
		}
	}
	return 0, false
}

func (p *Parser) emit() {
	frame := p.frame
	p.active = false
	p.clearField()
	p.frame = Snapshot{}
	p.framesEmitted.Add(1)

	p.callbackMu.RLock()
	fn := p.onFrame
	p.callbackMu.RUnlock()
	if fn != nil {
		fn(frame)
	}
}

func (p *Parser) reportError(err error) {
	p.callbackMu.RLock()
	fn := p.onError
	p.callbackMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
