// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package export writes analysis results in columnar formats: an Apache
// Arrow IPC stream and Parquet files.
package export

import (
	"fmt"
	"io"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/ipc"
	"github.com/apache/arrow/go/arrow/memory"
)

var (
	depType = arrow.StructOf(
		arrow.Field{Name: "arc", Type: arrow.PrimitiveTypes.Uint64},
		arrow.Field{Name: "rel", Type: arrow.BinaryTypes.String},
	)
	sdpType = arrow.StructOf(
		arrow.Field{Name: "src", Type: arrow.PrimitiveTypes.Uint64},
		arrow.Field{Name: "tgt", Type: arrow.PrimitiveTypes.Uint64},
		arrow.Field{Name: "rel", Type: arrow.BinaryTypes.String},
	)
)

// Schema returns the Arrow schema of one result row. Every column is
// nullable; a task the model does not serve is written as a null list.
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "seg", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "pos", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "ner", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "srl", Type: arrow.ListOf(arrow.ListOf(arrow.BinaryTypes.String)), Nullable: true},
		{Name: "dep", Type: arrow.ListOf(depType), Nullable: true},
		{Name: "sdp", Type: arrow.ListOf(sdpType), Nullable: true},
	}, nil)
}

// Record builds a single record batch holding one row per result.
// The caller owns the returned record and must Release it.
func Record(mem memory.Allocator, results []pipelines.Result) array.Record {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	segBuilder := array.NewListBuilder(mem, arrow.BinaryTypes.String)
	defer segBuilder.Release()
	posBuilder := array.NewListBuilder(mem, arrow.BinaryTypes.String)
	defer posBuilder.Release()
	nerBuilder := array.NewListBuilder(mem, arrow.BinaryTypes.String)
	defer nerBuilder.Release()
	srlBuilder := array.NewListBuilder(mem, arrow.ListOf(arrow.BinaryTypes.String))
	defer srlBuilder.Release()
	depBuilder := array.NewListBuilder(mem, depType)
	defer depBuilder.Release()
	sdpBuilder := array.NewListBuilder(mem, sdpType)
	defer sdpBuilder.Release()

	for _, r := range results {
		appendStrings(segBuilder, r.Seg)
		appendStrings(posBuilder, r.POS)
		appendStrings(nerBuilder, r.NER)

		if r.SRL == nil {
			srlBuilder.AppendNull()
		} else {
			srlBuilder.Append(true)
			inner := srlBuilder.ValueBuilder().(*array.ListBuilder)
			for _, tags := range r.SRL {
				appendStrings(inner, tags)
			}
		}

		if r.Dep == nil {
			depBuilder.AppendNull()
		} else {
			depBuilder.Append(true)
			sb := depBuilder.ValueBuilder().(*array.StructBuilder)
			arcs := sb.FieldBuilder(0).(*array.Uint64Builder)
			rels := sb.FieldBuilder(1).(*array.StringBuilder)
			for _, e := range r.Dep {
				sb.Append(true)
				arcs.Append(uint64(e.Arc))
				rels.Append(e.Rel)
			}
		}

		if r.SDP == nil {
			sdpBuilder.AppendNull()
		} else {
			sdpBuilder.Append(true)
			sb := sdpBuilder.ValueBuilder().(*array.StructBuilder)
			srcs := sb.FieldBuilder(0).(*array.Uint64Builder)
			tgts := sb.FieldBuilder(1).(*array.Uint64Builder)
			rels := sb.FieldBuilder(2).(*array.StringBuilder)
			for _, e := range r.SDP {
				sb.Append(true)
				srcs.Append(uint64(e.Src))
				tgts.Append(uint64(e.Tgt))
				rels.Append(e.Rel)
			}
		}
	}

	cols := []array.Interface{
		segBuilder.NewArray(),
		posBuilder.NewArray(),
		nerBuilder.NewArray(),
		srlBuilder.NewArray(),
		depBuilder.NewArray(),
		sdpBuilder.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecord(Schema(), cols, int64(len(results)))
}

func appendStrings(b *array.ListBuilder, values []string) {
	if values == nil {
		b.AppendNull()
		return
	}
	b.Append(true)
	b.ValueBuilder().(*array.StringBuilder).AppendValues(values, nil)
}

// WriteArrowIPC streams results to w as a single Arrow IPC record batch.
func WriteArrowIPC(w io.Writer, results []pipelines.Result) error {
	mem := memory.NewGoAllocator()
	rec := Record(mem, results)
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		_ = iw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing arrow stream: %w", err)
	}
	return nil
}

// ReadArrowIPC decodes every record batch of an Arrow IPC stream written
// by WriteArrowIPC back into results.
func ReadArrowIPC(r io.Reader) ([]pipelines.Result, error) {
	ir, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening arrow stream: %w", err)
	}
	defer ir.Release()

	var results []pipelines.Result
	for ir.Next() {
		rec := ir.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			results = append(results, pipelines.Result{
				Seg: readStrings(rec.Column(0).(*array.List), i),
				POS: readStrings(rec.Column(1).(*array.List), i),
				NER: readStrings(rec.Column(2).(*array.List), i),
				SRL: readSRL(rec.Column(3).(*array.List), i),
				Dep: readDep(rec.Column(4).(*array.List), i),
				SDP: readSDP(rec.Column(5).(*array.List), i),
			})
		}
	}
	if err := ir.Err(); err != nil {
		return nil, fmt.Errorf("reading arrow stream: %w", err)
	}
	return results, nil
}

func listBounds(col *array.List, row int) (int, int) {
	offsets := col.Offsets()
	return int(offsets[row]), int(offsets[row+1])
}

func readStrings(col *array.List, row int) []string {
	if col.IsNull(row) {
		return nil
	}
	start, end := listBounds(col, row)
	values := col.ListValues().(*array.String)
	out := make([]string, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, values.Value(j))
	}
	return out
}

func readSRL(col *array.List, row int) [][]string {
	if col.IsNull(row) {
		return nil
	}
	start, end := listBounds(col, row)
	inner := col.ListValues().(*array.List)
	out := make([][]string, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, readStrings(inner, j))
	}
	return out
}

func readDep(col *array.List, row int) []pipelines.DepEdge {
	if col.IsNull(row) {
		return nil
	}
	start, end := listBounds(col, row)
	st := col.ListValues().(*array.Struct)
	arcs := st.Field(0).(*array.Uint64)
	rels := st.Field(1).(*array.String)
	out := make([]pipelines.DepEdge, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, pipelines.DepEdge{Arc: int(arcs.Value(j)), Rel: rels.Value(j)})
	}
	return out
}

func readSDP(col *array.List, row int) []pipelines.SDPEdge {
	if col.IsNull(row) {
		return nil
	}
	start, end := listBounds(col, row)
	st := col.ListValues().(*array.Struct)
	srcs := st.Field(0).(*array.Uint64)
	tgts := st.Field(1).(*array.Uint64)
	rels := st.Field(2).(*array.String)
	out := make([]pipelines.SDPEdge, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, pipelines.SDPEdge{
			Src: int(srcs.Value(j)),
			Tgt: int(tgts.Value(j)),
			Rel: rels.Value(j),
		})
	}
	return out
}
