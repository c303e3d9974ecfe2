/*
Copyright (C) 2023  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package fef

import (
	"bytes"
	"encoding/json"
	"strings"
	"unsafe"

	"golang.org/x/text/unicode/norm"

	"github.com/launix-de/fef/ferr"
)

// Allocator is the subset of segment.Handle the transducer needs: one sized
// allocation, and the ability to grow it in place if pass 1's string-pool
// estimate ever falls short.
type Allocator interface {
	Allocate(size uint64) ([]byte, error)
	Reallocate(ptr []byte, size uint64) ([]byte, error)
}

// Options configures a single Load call.
type Options struct {
	DisableRLE bool
	DisableCSV bool
	// BaseDir resolves relative ".csv" references found in the JSON input.
	// Defaults to "." when empty.
	BaseDir string
	// Progress, if set, is called at each transducer phase transition:
	// "pass1" before counting starts, "pass2" once the buffer is sized and
	// allocated, and "done" once emission finishes. Used by control.Server's
	// /watch endpoint; nil is the common case and costs nothing extra.
	Progress func(phase string, argumentCount uint64)
}

// Load runs the two-pass JSON -> FEF transducer described by the package
// doc. Pass 1 (countPass) walks the input purely to size every sub-array
// exactly, including a per-nesting-depth argument tally; pass 2 (Writer)
// replays the same walk, pre-order, assigning each container's own
// expression index the moment it opens (so the document root always lands
// at expression-table index 0, per §3) and each argument its slot from a
// running per-depth cursor shared by every node at that depth — the layer
// cursor scheme the original transducer's startExpression/endExpression
// implement via cumulArgCountPerLayer. There is no writer-process ambient
// global — the *Writer created (and discarded) here is the only mutable
// context, threaded explicitly through every emit call.
func Load(alloc Allocator, data []byte, opts Options) (Root, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}

	if opts.Progress != nil {
		opts.Progress("pass1", 0)
	}
	cp := &countPass{disableCSV: opts.DisableCSV, baseDir: opts.BaseDir}
	rootType, exprs, layerArgs, strBytes, err := cp.countRoot(data)
	if err != nil {
		return Root{}, err
	}

	var args uint64
	if rootType == TypeExpression {
		for _, n := range layerArgs {
			args += n
		}
	} else {
		args = 1 // a bare scalar document occupies its own single argument slot
	}

	size := headerSize + args*argValueSize + args*argTagSize + exprs*expressionSize + strBytes
	base, err := alloc.Allocate(size)
	if err != nil {
		return Root{}, err
	}
	if opts.Progress != nil {
		opts.Progress("pass2", args)
	}

	w := &Writer{alloc: alloc, opts: opts, base: base}
	h := w.root().Header()
	h.ArgumentCount = args
	h.ExpressionCount = exprs
	h.OriginalAddress = addressOfBytes(base)
	h.StringArgumentsFillIndex = 0

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if rootType == TypeExpression {
		w.layerCursor = prefixSums(layerArgs)
		if _, _, err := w.emitValue(dec, 0); err != nil {
			return Root{}, err
		}
	} else {
		tag, val, err := w.emitValue(dec, 0)
		if err != nil {
			return Root{}, err
		}
		w.setArg(0, val)
		w.setTag(0, TagType(tag))
	}

	w.root().Header().StringArgumentsFillIndex = w.poolCursor
	if opts.Progress != nil {
		opts.Progress("done", args)
	}
	return w.root(), nil
}

// prefixSums turns counts (total argument slots needed at each nesting
// depth) into the running start offset for that depth's slab, the same
// partial_sum the original applies to cumulArgCountPerLayer.
func prefixSums(counts []uint64) []uint64 {
	sums := make([]uint64, len(counts))
	var acc uint64
	for i, n := range counts {
		sums[i] = acc
		acc += n
	}
	return sums
}

// Writer is the explicit, non-global mutable context for one Load call.
// layerCursor[d] is the next free argument slot at nesting depth d, shared
// by every node that places children there; a container reads it once when
// opening (fixing its own startChildOffset) and writes it back only when it
// closes, handing the next sibling at that depth its starting point.
type Writer struct {
	alloc       Allocator
	opts        Options
	base        []byte
	layerCursor []uint64
	exprCursor  uint64
	poolCursor  uint64
}

func (w *Writer) root() Root { return Root{Base: w.base} }

func (w *Writer) allocExpr() uint64 {
	idx := w.exprCursor
	w.exprCursor++
	return idx
}

func (w *Writer) setArg(i uint64, value uint64) {
	w.root().Values()[i] = value
}

func (w *Writer) setExpr(idx uint64, symOffset, start, end uint64) {
	w.root().Expressions()[idx] = Expression{SymbolNameOffset: symOffset, StartChildOffset: start, EndChildOffset: end}
}

// normalizeString puts s into Unicode Normalization Form C before it is
// measured or stored, so two byte-different-but-canonically-equal strings
// (e.g. an "e"+combining-acute vs. a precomposed "é") land in the string
// pool identically and compare equal under a plain byte comparison.
func normalizeString(s string) string {
	return norm.NFC.String(s)
}

// storeString NFC-normalizes and appends s (NUL-terminated) to the string
// pool, returning its offset. Pass 1's stringBytes tally normalizes the same
// way before measuring, so the two passes agree on size; storeString's own
// growPool fallback is a safety net, not the primary allocation path (see
// Load).
func (w *Writer) storeString(s string) uint64 {
	s = normalizeString(s)
	pool := w.root().StringPool()
	need := uint64(len(s)) + 1
	if w.poolCursor+need > uint64(len(pool)) {
		w.growPool(need)
		pool = w.root().StringPool()
	}
	copy(pool[w.poolCursor:], s)
	pool[w.poolCursor+uint64(len(s))] = 0
	off := w.poolCursor
	w.poolCursor += need
	w.root().Header().StringArgumentsFillIndex = w.poolCursor
	return off
}

func (w *Writer) growPool(need uint64) {
	cur := uint64(len(w.base))
	grown := cur + need + cur/2 + 4096
	newBase, err := w.alloc.Reallocate(w.base, grown)
	if err != nil {
		panic(ferr.Wrap(ferr.InvariantViolated, "string pool exceeded pass-1 estimate and reallocate failed", err))
	}
	w.base = newBase
	w.root().Header().OriginalAddress = addressOfBytes(newBase)
}

func addressOfBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

// emitValue consumes the next JSON value from dec and returns the (tag,
// value) descriptor the caller should place in its own argument slot. depth
// is the nesting depth at which this value's own children (if it turns out
// to be a container) are laid out — i.e. one past the depth of the slot the
// caller is filling.
func (w *Writer) emitValue(dec *json.Decoder, depth int) (tag, value uint64, err error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, ferr.Wrap(ferr.ParseError, "read json token", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return w.emitObject(dec, depth)
		case '[':
			return w.emitArray(dec, depth)
		}
		return 0, 0, ferr.NewParseError(dec.InputOffset(), v.String(), "unexpected delimiter")
	case string:
		if !w.opts.DisableCSV && isCSVPath(v) {
			return w.emitCSVTable(resolveCSVPath(w.opts.BaseDir, v), depth)
		}
		return MakeTag(TypeString), w.storeString(v), nil
	case json.Number:
		if numberIsIntegral(v) {
			n, _ := v.Int64()
			return MakeTag(TypeLong), valueFromLong(n), nil
		}
		f, _ := v.Float64()
		return MakeTag(TypeDouble), valueFromDouble(f), nil
	case bool:
		b := uint64(0)
		if v {
			b = 1
		}
		return MakeTag(TypeBool), b, nil
	case nil:
		return MakeTag(TypeSymbol), w.storeString("Null"), nil
	}
	return 0, 0, ferr.NewParseError(dec.InputOffset(), "", "unsupported json token")
}

// childGroup accumulates one container's direct children as they are
// emitted: each child's value is written to its final slot immediately
// (start+count, known as soon as the group opens), while only the type
// sequence is buffered — bounded by fan-out, not subtree size — so RLE runs
// can be decided once the whole sibling list is known.
type childGroup struct {
	start uint64
	count uint64
	types []ArgType
}

func (g *childGroup) nextSlot() uint64 {
	idx := g.start + g.count
	g.count++
	return idx
}

func (w *Writer) emitObject(dec *json.Decoder, depth int) (tag, value uint64, err error) {
	exprIdx := w.allocExpr()
	g := childGroup{start: w.layerCursor[depth]}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return 0, 0, ferr.Wrap(ferr.ParseError, "read object key", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return 0, 0, ferr.New(ferr.ParseError, "object key is not a string")
		}

		// the key-wrapper is a one-child expression: its own expression
		// index is assigned now (pre-order), its single value lives one
		// layer deeper than the object's own children.
		kwIdx := w.allocExpr()
		kwStart := w.layerCursor[depth+1]
		vtag, vval, err := w.emitValue(dec, depth+2)
		if err != nil {
			return 0, 0, err
		}
		w.setArg(kwStart, vval)
		w.setTag(kwStart, TagType(vtag))
		w.layerCursor[depth+1] = kwStart + 1
		w.setExpr(kwIdx, w.storeString(key), kwStart, kwStart+1)

		w.setArg(g.nextSlot(), kwIdx)
		g.types = append(g.types, TypeExpression)
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return 0, 0, ferr.Wrap(ferr.ParseError, "read object close", err)
	}

	w.layerCursor[depth] = g.start + g.count
	w.writeTags(g.start, g.types)
	w.setExpr(exprIdx, w.storeString("Object"), g.start, g.start+g.count)
	return MakeTag(TypeExpression), exprIdx, nil
}

func (w *Writer) emitArray(dec *json.Decoder, depth int) (tag, value uint64, err error) {
	exprIdx := w.allocExpr()
	g := childGroup{start: w.layerCursor[depth]}
	for dec.More() {
		vtag, vval, err := w.emitValue(dec, depth+1)
		if err != nil {
			return 0, 0, err
		}
		w.setArg(g.nextSlot(), vval)
		g.types = append(g.types, TagType(vtag))
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return 0, 0, ferr.Wrap(ferr.ParseError, "read array close", err)
	}

	w.layerCursor[depth] = g.start + g.count
	w.writeTags(g.start, g.types)
	w.setExpr(exprIdx, w.storeString("List"), g.start, g.start+g.count)
	return MakeTag(TypeExpression), exprIdx, nil
}

func numberIsIntegral(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

// countPass mirrors Writer but only tallies costs; it never touches a
// buffer. Running it first is what lets Load make a single, exactly-sized
// allocation instead of growing the whole tree as it discovers content.
type countPass struct {
	disableCSV bool
	baseDir    string
}

// countRoot walks the whole document once, returning the root value's own
// type, the total expression count, the per-nesting-depth argument tally
// (layers[d] == how many argument slots every node at depth d will need,
// summed across the whole document) and the total string-pool bytes.
func (cp *countPass) countRoot(data []byte) (rootType ArgType, exprs uint64, layers []uint64, stringBytes uint64, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	rootType, exprs, stringBytes, err = cp.countValue(dec, 0, &layers)
	return rootType, exprs, layers, stringBytes, err
}

func ensureLayer(layers *[]uint64, depth int) {
	for len(*layers) <= depth {
		*layers = append(*layers, 0)
	}
}

func (cp *countPass) countValue(dec *json.Decoder, depth int, layers *[]uint64) (argType ArgType, exprs, stringBytes uint64, err error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, 0, ferr.Wrap(ferr.ParseError, "read json token", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return cp.countObject(dec, depth, layers)
		case '[':
			return cp.countArray(dec, depth, layers)
		}
		return 0, 0, 0, ferr.NewParseError(dec.InputOffset(), v.String(), "unexpected delimiter")
	case string:
		if !cp.disableCSV && isCSVPath(v) {
			e, b, err := cp.countCSVTable(resolveCSVPath(cp.baseDir, v), depth, layers)
			return TypeExpression, e, b, err
		}
		return TypeString, 0, uint64(len(normalizeString(v))) + 1, nil
	case json.Number:
		if numberIsIntegral(v) {
			return TypeLong, 0, 0, nil
		}
		return TypeDouble, 0, 0, nil
	case bool:
		return TypeBool, 0, 0, nil
	case nil:
		return TypeSymbol, 0, uint64(len("Null")) + 1, nil
	}
	return 0, 0, 0, ferr.NewParseError(dec.InputOffset(), "", "unsupported json token")
}

func (cp *countPass) countObject(dec *json.Decoder, depth int, layers *[]uint64) (argType ArgType, exprs, stringBytes uint64, err error) {
	exprs = 1 // the object itself
	ensureLayer(layers, depth)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return 0, 0, 0, ferr.Wrap(ferr.ParseError, "read object key", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return 0, 0, 0, ferr.New(ferr.ParseError, "object key is not a string")
		}

		exprs++ // the key-wrapper
		ensureLayer(layers, depth+1)
		(*layers)[depth+1]++ // the key-wrapper's single value child
		_, ve, vb, err := cp.countValue(dec, depth+2, layers)
		if err != nil {
			return 0, 0, 0, err
		}
		exprs += ve
		stringBytes += uint64(len(normalizeString(key))) + 1 + vb
		(*layers)[depth]++ // the key-wrapper, as the object's own child
	}
	if _, err := dec.Token(); err != nil {
		return 0, 0, 0, ferr.Wrap(ferr.ParseError, "read object close", err)
	}
	stringBytes += uint64(len("Object")) + 1
	return TypeExpression, exprs, stringBytes, nil
}

func (cp *countPass) countArray(dec *json.Decoder, depth int, layers *[]uint64) (argType ArgType, exprs, stringBytes uint64, err error) {
	exprs = 1
	ensureLayer(layers, depth)
	for dec.More() {
		_, ve, vb, err := cp.countValue(dec, depth+1, layers)
		if err != nil {
			return 0, 0, 0, err
		}
		exprs += ve
		stringBytes += vb
		(*layers)[depth]++
	}
	if _, err := dec.Token(); err != nil {
		return 0, 0, 0, ferr.Wrap(ferr.ParseError, "read array close", err)
	}
	stringBytes += uint64(len("List")) + 1
	return TypeExpression, exprs, stringBytes, nil
}
