package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

type Align byte

const (
	AlignLeft   Align = 0
	AlignCenter Align = 1
	AlignRight  Align = 2
)

// Document accumulates an ESC/POS byte stream and the equivalent plain-text
// preview, one line at a time.
type Document struct {
	buf   bytes.Buffer
	lines []string
	width int
	align Align
}

// NewDocument starts a document for the given paper width in characters
// (32 for 58mm rolls, 48 for 80mm).
func NewDocument(width int) *Document {
	if width <= 0 {
		width = 32
	}
	d := &Document{width: width}
	d.buf.Write([]byte{esc, '@'})
	return d
}

func (d *Document) Align(a Align) *Document {
	d.align = a
	d.buf.Write([]byte{esc, 'a', byte(a)})
	return d
}

func (d *Document) Bold(on bool) *Document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

// DoubleSize toggles double width and height. Preview lines are unaffected.
func (d *Document) DoubleSize(on bool) *Document {
	size := byte(0x00)
	if on {
		size = 0x11
	}
	d.buf.Write([]byte{gs, '!', size})
	return d
}

func (d *Document) Text(s string) *Document {
	d.buf.WriteString(s)
	d.buf.WriteByte(lf)
	d.lines = append(d.lines, d.preview(s))
	return d
}

func (d *Document) Separator(char byte) *Document {
	return d.Text(strings.Repeat(string(char), d.width))
}

// Pair prints key left-aligned and value right-aligned on one line.
func (d *Document) Pair(key, value string) *Document {
	return d.Text(key + strings.Repeat(" ", d.gap(key, value)) + value)
}

func (d *Document) Item(qty int, name, total string) *Document {
	return d.Pair(fmt.Sprintf("%dx %s", qty, name), total)
}

func (d *Document) Feed(n int) *Document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(lf)
		d.lines = append(d.lines, "")
	}
	return d
}

func (d *Document) Cut() *Document {
	d.buf.Write([]byte{gs, 'V', 0x41, 0x10})
	return d
}

func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

func (d *Document) Preview() string {
	return strings.Join(d.lines, "\n")
}

func (d *Document) gap(key, value string) int {
	spaces := d.width - utf8.RuneCountInString(key) - utf8.RuneCountInString(value)
	if spaces < 1 {
		return 1
	}
	return spaces
}

func (d *Document) preview(s string) string {
	n := utf8.RuneCountInString(s)
	if d.align != AlignCenter || n >= d.width {
		return s
	}
	return strings.Repeat(" ", (d.width-n)/2) + s
}
