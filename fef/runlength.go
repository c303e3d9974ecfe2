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

// writeTags fills the tag words for one container's already-known child
// types into their final, argument-count-sized slots starting at start —
// the same fixed array Root.Tags() returns, never a separately sized one.
// A run of RLEMinRun or more identical consecutive types collapses to its
// first word (flagged with the RLE bit) plus a run-length word; every tag
// word strictly inside the run is left untouched, matching how the original
// format's RLE never shrinks the type array, only leaves interior words
// undefined.
//
// Expression-typed children are never run-compacted, RLE or not: the
// original's addExpression always resets the in-progress run rather than
// extending it, since an Expression argument's value (its own expression
// index) is never interchangeable with its neighbors the way repeated
// scalars are.
func (w *Writer) writeTags(start uint64, types []ArgType) {
	tags := w.root().Tags()
	i := 0
	for i < len(types) {
		t := types[i]
		if t == TypeExpression || w.opts.DisableRLE {
			tags[start+uint64(i)] = MakeTag(t)
			i++
			continue
		}
		j := i + 1
		for j < len(types) && types[j] == t {
			j++
		}
		runLen := uint64(j - i)
		pos := start + uint64(i)
		if runLen >= RLEMinRun {
			tags[pos] = MakeRLETag(t)
			tags[pos+1] = runLen
		} else {
			for k := uint64(0); k < runLen; k++ {
				tags[pos+k] = MakeTag(t)
			}
		}
		i = j
	}
}

// setTag writes a single plain (never-RLE) tag word at idx, for slots known
// at emission time to hold exactly one child — a run of one can never meet
// RLEMinRun, so there is nothing to compact.
func (w *Writer) setTag(idx uint64, t ArgType) {
	w.root().Tags()[idx] = MakeTag(t)
}
