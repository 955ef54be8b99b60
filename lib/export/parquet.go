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


package export

import (
	"fmt"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/goccy/go-json"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetRow is the on-disk layout of one analysed sentence. Flat tag
// sequences are native string lists; the nested layers are stored as JSON
// text and are null when their task is disabled.
type ParquetRow struct {
	Sentence string   `parquet:"name=sentence, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seg      []string `parquet:"name=seg, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	POS      []string `parquet:"name=pos, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	NER      []string `parquet:"name=ner, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	SRL      *string  `parquet:"name=srl, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Dep      *string  `parquet:"name=dep, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SDP      *string  `parquet:"name=sdp, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// parquetParallelism is the writer and reader goroutine count.
const parquetParallelism = 4

// WriteParquet writes one row per sentence to a snappy-compressed Parquet
// file at path. sentences and results must be parallel.
func WriteParquet(path string, sentences []string, results []pipelines.Result) error {
	if len(sentences) != len(results) {
		return fmt.Errorf("got %d sentences but %d results", len(sentences), len(results))
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRow), parquetParallelism)
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range results {
		row, err := toRow(sentences[i], &results[i])
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finishing parquet file: %w", err)
	}
	return nil
}

// ReadParquet reads back a file written by WriteParquet. An empty flat
// list and a disabled flat task both read back as nil.
func ReadParquet(path string) ([]string, []pipelines.Result, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRow), parquetParallelism)
	if err != nil {
		return nil, nil, fmt.Errorf("creating parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]ParquetRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, nil, fmt.Errorf("reading parquet rows: %w", err)
	}

	sentences := make([]string, len(rows))
	results := make([]pipelines.Result, len(rows))
	for i := range rows {
		sentences[i] = rows[i].Sentence
		if err := fromRow(&rows[i], &results[i]); err != nil {
			return nil, nil, fmt.Errorf("decoding row %d: %w", i, err)
		}
	}
	return sentences, results, nil
}

func toRow(sentence string, r *pipelines.Result) (*ParquetRow, error) {
	row := &ParquetRow{Sentence: sentence, Seg: r.Seg, POS: r.POS, NER: r.NER}
	var err error
	if row.SRL, err = jsonColumn(r.SRL == nil, r.SRL); err != nil {
		return nil, err
	}
	if row.Dep, err = jsonColumn(r.Dep == nil, r.Dep); err != nil {
		return nil, err
	}
	if row.SDP, err = jsonColumn(r.SDP == nil, r.SDP); err != nil {
		return nil, err
	}
	return row, nil
}

func jsonColumn(null bool, v any) (*string, error) {
	if null {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func fromRow(row *ParquetRow, r *pipelines.Result) error {
	r.Seg, r.POS, r.NER = nonEmpty(row.Seg), nonEmpty(row.POS), nonEmpty(row.NER)
	if row.SRL != nil {
		if err := json.Unmarshal([]byte(*row.SRL), &r.SRL); err != nil {
			return err
		}
	}
	if row.Dep != nil {
		if err := json.Unmarshal([]byte(*row.Dep), &r.Dep); err != nil {
			return err
		}
	}
	if row.SDP != nil {
		if err := json.Unmarshal([]byte(*row.SDP), &r.SDP); err != nil {
			return err
		}
	}
	return nil
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
