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
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/launix-de/fef/ferr"
)

// isCSVPath reports whether a JSON string value names a CSV file to inline,
// per the CSV-inlining rule: any string ending in ".csv" is treated as a
// reference, never as a literal string value.
func isCSVPath(v string) bool {
	return strings.HasSuffix(strings.ToLower(v), ".csv")
}

func resolveCSVPath(baseDir, v string) string {
	if filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(baseDir, v)
}

// loadCSVRows hand-splits on commas the same way the teacher's own CSV loader
// does, rather than reaching for encoding/csv: field values in this format
// are never quoted, so a Split is exact and avoids a whole-file materializing
// parser for what is, in practice, a columnar dump.
func loadCSVRows(path string) (header []string, rows [][]string, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, ferr.Wrap(ferr.IoError, "open csv "+path, openErr)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return nil, nil, ferr.New(ferr.ParseError, "csv file "+path+" is empty")
	}
	header = strings.Split(scanner.Text(), ",")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, ","))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, ferr.Wrap(ferr.IoError, "read csv "+path, err)
	}
	return header, rows, nil
}

// inferColumnType runs the Long -> Double -> String ladder over a column's
// non-empty cells. A column with no non-empty cells at all infers as String.
func inferColumnType(rows [][]string, col int) ArgType {
	allLong, allDouble, any := true, true, false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		cell := row[col]
		if cell == "" {
			continue
		}
		any = true
		if allLong {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				allLong = false
			}
		}
		if allDouble {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allDouble = false
			}
		}
	}
	if !any {
		return TypeString
	}
	if allLong {
		return TypeLong
	}
	if allDouble {
		return TypeDouble
	}
	return TypeString
}

func cellAt(rows [][]string, row, col int) string {
	if row >= len(rows) || col >= len(rows[row]) {
		return ""
	}
	return rows[row][col]
}

// countCSVTable is pass 1's CSV budget accounting: it reads the file once to
// learn column count, row count and per-column inferred types, and tallies
// the exact expression/string-byte cost the Table subtree will need in pass
// 2, plus its argument-slot demand on the two nesting depths it occupies —
// depth for the Table's own column references, depth+1 for each column's
// cells — without retaining the cells themselves. There is no tag-word
// tally: the tag array's size is a fixed function of argument count (see
// fef/layout.go), never of how well RLE happens to compress this file.
func (cp *countPass) countCSVTable(path string, depth int, layers *[]uint64) (exprs, stringBytes uint64, err error) {
	header, rows, err := loadCSVRows(path)
	if err != nil {
		return 0, 0, err
	}
	numCols := uint64(len(header))
	numRows := uint64(len(rows))

	exprs = 1 + numCols // Table node + one Column node per column
	stringBytes = uint64(len("Table")) + 1

	ensureLayer(layers, depth)
	ensureLayer(layers, depth+1)
	(*layers)[depth] += numCols
	(*layers)[depth+1] += numCols * numRows

	for col, name := range header {
		stringBytes += uint64(len(normalizeString(name))) + 1
		colType := inferColumnType(rows, col)
		for r := uint64(0); r < numRows; r++ {
			cell := cellAt(rows, int(r), col)
			if cell == "" {
				stringBytes += uint64(len("Missing")) + 1
			} else if colType == TypeString {
				stringBytes += uint64(len(normalizeString(cell))) + 1
			}
		}
	}
	return exprs, stringBytes, nil
}

// TimeCSVLadder runs the Long -> Double -> String column-type ladder over
// path without building anything, for the CLI's timed-only bare-.csv path
// (SPEC_FULL.md §13) and the bench package's TimeCSV.
func TimeCSVLadder(path string) error {
	cp := &countPass{}
	var layers []uint64
	_, _, err := cp.countCSVTable(path, 0, &layers)
	return err
}

// emitCSVTable mirrors countCSVTable exactly (same file, same ladder) and
// actually writes the Table subtree into the buffer, returning the
// Expression-typed descriptor for the parent's slot. Column expression
// indices are allocated pre-order, before their own cells are written, so a
// Table nested anywhere but at the very root still keeps every container's
// own expression index lower than any of its descendants'.
func (w *Writer) emitCSVTable(path string, depth int) (tag, value uint64, err error) {
	header, rows, err := loadCSVRows(path)
	if err != nil {
		return 0, 0, err
	}
	numCols := len(header)
	numRows := len(rows)

	tableIdx := w.allocExpr()
	colsStart := w.layerCursor[depth]
	colTypes := make([]ArgType, 0, numCols)

	for col, name := range header {
		colIdx := w.allocExpr()
		colType := inferColumnType(rows, col)
		cellsStart := w.layerCursor[depth+1]
		cellTypes := make([]ArgType, 0, numRows)
		for r := 0; r < numRows; r++ {
			cell := cellAt(rows, r, col)
			var cellVal uint64
			var cellType ArgType
			if cell == "" {
				cellVal = w.storeString("Missing")
				cellType = TypeSymbol
			} else {
				switch colType {
				case TypeLong:
					n, _ := strconv.ParseInt(cell, 10, 64)
					cellVal = valueFromLong(n)
				case TypeDouble:
					f, _ := strconv.ParseFloat(cell, 64)
					cellVal = valueFromDouble(f)
				default:
					cellVal = w.storeString(cell)
				}
				cellType = colType
			}
			w.setArg(cellsStart+uint64(r), cellVal)
			cellTypes = append(cellTypes, cellType)
		}
		w.layerCursor[depth+1] = cellsStart + uint64(numRows)
		w.writeTags(cellsStart, cellTypes)
		w.setExpr(colIdx, w.storeString(name), cellsStart, cellsStart+uint64(numRows))

		w.setArg(colsStart+uint64(col), colIdx)
		colTypes = append(colTypes, TypeExpression)
	}

	w.layerCursor[depth] = colsStart + uint64(numCols)
	w.writeTags(colsStart, colTypes)
	w.setExpr(tableIdx, w.storeString("Table"), colsStart, colsStart+uint64(numCols))
	return MakeTag(TypeExpression), tableIdx, nil
}
