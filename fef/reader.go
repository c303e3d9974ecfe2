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

import "github.com/launix-de/fef/ferr"

// Cursor is a lazy, zero-copy position inside a loaded FEF buffer. For a
// scalar slot, arg is the argument index and base anchors where its
// governing tag run started — tag() only ever needs to scan forward from
// base, never from word 0, so a freshly matched position (base == arg) is
// an O(1) lookup. rootExpr is set only for a document whose root is itself
// a container (object/array/table): such a root occupies no argument slot
// at all (see Writer.Load), so the cursor instead names expression-table
// index 0 directly.
type Cursor struct {
	root     Root
	arg      uint64
	base     uint64
	rootExpr bool
}

// NewCursor returns a Cursor over the document root: its single occupied
// argument slot for a bare-scalar document, or expression-table index 0
// directly when the root is a container.
func NewCursor(root Root) Cursor {
	if root.Header().ExpressionCount > 0 {
		exprs := root.Expressions()
		if len(exprs) > 0 {
			// A container root is not addressed through any argument slot;
			// whether it also happens to be argument 0 of some row is
			// irrelevant here since Load never allocates one for it.
			return Cursor{root: root, rootExpr: true}
		}
	}
	return Cursor{root: root, arg: 0, base: 0}
}

// tag resolves the ArgType at argIndex by walking the physical tag stream
// forward starting at base, decoding RLE runs as it goes. base must be the
// StartChildOffset of the owning expression (or 0 for the document's own
// slot) — never an arbitrary later position — so every logical slot from
// base onward is visited in order and no flagged run is ever entered
// mid-run. Called with base equal to argIndex itself (the common case once
// a caller has already located its position), this degenerates to a single
// tag read.
func (r Root) tag(base, argIndex uint64) ArgType {
	tags := r.Tags()
	i, logical := base, base
	for i < uint64(len(tags)) {
		t := tags[i]
		if TagHasRLE(t) {
			run := tags[i+1]
			if argIndex < logical+run {
				return TagType(t)
			}
			logical += run
			i += run
			continue
		}
		if argIndex == logical {
			return TagType(t)
		}
		logical++
		i++
	}
	panic(ferr.New(ferr.InvariantViolated, "argument index out of range of tag stream"))
}

// Type reports the resolved argument type at the cursor. For a container
// root (rootExpr), this is always TypeExpression by construction.
func (c Cursor) Type() ArgType {
	if c.rootExpr {
		return TypeExpression
	}
	return c.root.tag(c.base, c.arg)
}

func (c Cursor) value() uint64 {
	if c.rootExpr {
		return 0 // expression-table index 0, the document root
	}
	return c.root.Values()[c.arg]
}

// Long returns the cursor's value as an int64. Panics (an invariant
// violation, not a recoverable error) if the slot is not a Long.
func (c Cursor) Long() int64 {
	if c.Type() != TypeLong {
		panic(ferr.New(ferr.InvariantViolated, "Cursor.Long called on non-Long argument"))
	}
	return valueAsLong(c.value())
}

// Double returns the cursor's value as a float64.
func (c Cursor) Double() float64 {
	if c.Type() != TypeDouble {
		panic(ferr.New(ferr.InvariantViolated, "Cursor.Double called on non-Double argument"))
	}
	return valueAsDouble(c.value())
}

// Bool returns the cursor's value as a bool.
func (c Cursor) Bool() bool {
	if c.Type() != TypeBool {
		panic(ferr.New(ferr.InvariantViolated, "Cursor.Bool called on non-Bool argument"))
	}
	return c.value() != 0
}

// String returns the cursor's value as a string, valid for both TypeString
// and TypeSymbol slots (both store a string-pool offset).
func (c Cursor) String() string {
	t := c.Type()
	if t != TypeString && t != TypeSymbol {
		panic(ferr.New(ferr.InvariantViolated, "Cursor.String called on non-String/Symbol argument"))
	}
	return c.root.ViewString(c.value())
}

// IsExpression reports whether the cursor's slot holds a nested expression
// (object, array, or CSV-inlined table) rather than a scalar.
func (c Cursor) IsExpression() bool { return c.rootExpr || c.Type() == TypeExpression }

// Symbol returns the expression's head name, e.g. "Object", "List", "Table",
// or the key name for an object's key-wrapper expression.
func (c Cursor) Symbol() string {
	expr := c.expression()
	return c.root.ViewString(expr.SymbolNameOffset)
}

func (c Cursor) expression() Expression {
	if !c.IsExpression() {
		panic(ferr.New(ferr.InvariantViolated, "Cursor does not hold an expression"))
	}
	return c.root.Expressions()[c.value()]
}

// ChildCount returns the number of direct children of an expression cursor.
func (c Cursor) ChildCount() uint64 {
	e := c.expression()
	return e.EndChildOffset - e.StartChildOffset
}

// ChildByIndex returns the i-th direct child of an expression cursor. base
// is reset to the expression's own StartChildOffset rather than to i,
// because an arbitrary index into a possibly RLE-compacted scalar run
// cannot be assumed to land on a run-start tag word — finding its governing
// run still requires a scan from the expression's first child. Iterating
// every child via repeated ChildByIndex calls is therefore quadratic in the
// fan-out for scalar columns; LongIter/DoubleIter exist precisely to avoid
// that for the common case of scanning a whole column.
func (c Cursor) ChildByIndex(i uint64) Cursor {
	e := c.expression()
	if i >= e.EndChildOffset-e.StartChildOffset {
		panic(ferr.New(ferr.InvariantViolated, "child index out of range"))
	}
	return Cursor{root: c.root, arg: e.StartChildOffset + i, base: e.StartChildOffset}
}

// ChildByKey linearly scans an Object expression's children for a
// key-wrapper whose Symbol matches key, returning that key-wrapper's single
// child (the value). This is genuinely O(number of children): the scan
// indexes the physical tag array directly (tags[i]) rather than resolving
// each child's type through Cursor.Type()/tag(), which would restart a
// bounded scan from the expression's start on every iteration and make the
// whole loop quadratic. Direct indexing is safe here because every child of
// an Object is itself a key-wrapper expression, and Writer.writeTags never
// folds Expression-typed children into an RLE run — so tags[i] is always a
// plain, immediately-valid tag word for these positions, never one sitting
// mid-run. Returns KeyNotFound if no such key exists.
func (c Cursor) ChildByKey(key string) (Cursor, error) {
	e := c.expression()
	tags := c.root.Tags()
	exprs := c.root.Expressions()
	for i := e.StartChildOffset; i < e.EndChildOffset; i++ {
		if TagType(tags[i]) != TypeExpression {
			continue
		}
		kwIdx := c.root.Values()[i]
		kwExpr := exprs[kwIdx]
		if c.root.ViewString(kwExpr.SymbolNameOffset) != key {
			continue
		}
		if kwExpr.EndChildOffset <= kwExpr.StartChildOffset {
			return Cursor{}, ferr.New(ferr.InvariantViolated, "key-wrapper has no value child")
		}
		start := kwExpr.StartChildOffset
		return Cursor{root: c.root, arg: start, base: start}, nil
	}
	return Cursor{}, ferr.New(ferr.KeyNotFound, "key not found: "+key)
}

// LongIter walks an expression's direct children as a homogeneous Long
// column, honoring RLE runs and CSV Missing cells without materializing
// them, in amortized O(1) per Next(): it decodes a run's tag word once when
// entering it and then indexes the (never RLE-compacted) values array
// directly for every logical position inside that run, rather than
// re-resolving each position's type through a fresh scan.
type LongIter struct {
	c       Cursor
	pos     uint64
	end     uint64
	runType ArgType
	runLeft uint64
}

func (c Cursor) LongIter() LongIter {
	e := c.expression()
	return LongIter{c: c, pos: e.StartChildOffset, end: e.EndChildOffset}
}

func (it *LongIter) Next() (v int64, ok bool, valid bool) {
	if it.pos >= it.end {
		return 0, false, false
	}
	if it.runLeft == 0 {
		tags := it.c.root.Tags()
		t := tags[it.pos]
		if TagHasRLE(t) {
			it.runType = TagType(t)
			it.runLeft = tags[it.pos+1]
		} else {
			it.runType = TagType(t)
			it.runLeft = 1
		}
	}
	val := it.c.root.Values()[it.pos]
	it.pos++
	it.runLeft--
	if it.runType == TypeSymbol {
		return 0, true, false
	}
	return valueAsLong(val), true, true
}

// DoubleIter is the Double-column counterpart of LongIter.
type DoubleIter struct {
	c       Cursor
	pos     uint64
	end     uint64
	runType ArgType
	runLeft uint64
}

func (c Cursor) DoubleIter() DoubleIter {
	e := c.expression()
	return DoubleIter{c: c, pos: e.StartChildOffset, end: e.EndChildOffset}
}

func (it *DoubleIter) Next() (v float64, ok bool, valid bool) {
	if it.pos >= it.end {
		return 0, false, false
	}
	if it.runLeft == 0 {
		tags := it.c.root.Tags()
		t := tags[it.pos]
		if TagHasRLE(t) {
			it.runType = TagType(t)
			it.runLeft = tags[it.pos+1]
		} else {
			it.runType = TagType(t)
			it.runLeft = 1
		}
	}
	val := it.c.root.Values()[it.pos]
	it.pos++
	it.runLeft--
	if it.runType == TypeSymbol {
		return 0, true, false
	}
	return valueAsDouble(val), true, true
}
