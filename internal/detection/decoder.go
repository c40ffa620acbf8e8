package detection

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 4 << 20

// Frame is one decoded detector record.
type Frame struct {
	// Index is the frame number reported by the detector, or the
	// 1-based position among non-blank records when the record has none.
	Index int64
	Raw   RawFrame
	Names map[int]string
	// Malformed counts boxes dropped during decoding (wrong arity).
	Malformed int
}

type frameRecord struct {
	Frame   *int64            `json:"frame,omitempty"`
	Boxes   [][]float64       `json:"boxes"`
	Classes []int             `json:"classes,omitempty"`
	Names   map[string]string `json:"names,omitempty"`
}

// Decoder reads detector output as JSON Lines, one frame per line.
type Decoder struct {
	scanner *bufio.Scanner
	line    int64
	frames  int64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: s}
}

// Next returns the next frame. Blank lines are skipped. It returns io.EOF
// once the input is exhausted.
func (d *Decoder) Next() (Frame, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec frameRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		d.frames++
		return d.frame(rec), nil
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	return Frame{}, io.EOF
}

func (d *Decoder) frame(rec frameRecord) Frame {
	f := Frame{Index: d.frames}
	if rec.Frame != nil {
		f.Index = *rec.Frame
	}

	f.Raw.Boxes = make([][4]float64, 0, len(rec.Boxes))
	f.Raw.ClassIDs = make([]int, 0, len(rec.Boxes))
	for i, b := range rec.Boxes {
		if len(b) < 4 {
			f.Malformed++
			continue
		}
		f.Raw.Boxes = append(f.Raw.Boxes, [4]float64{b[0], b[1], b[2], b[3]})
		classID := UnknownClass
		if i < len(rec.Classes) {
			classID = rec.Classes[i]
		}
		f.Raw.ClassIDs = append(f.Raw.ClassIDs, classID)
	}

	if len(rec.Names) > 0 {
		f.Names = make(map[int]string, len(rec.Names))
		for k, v := range rec.Names {
			id, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			f.Names[id] = v
		}
	}
	return f
}
