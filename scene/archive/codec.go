package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 1024 * 1024 // 1MB

// CodecByName returns the codec recorded under name in a manifest.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "jsonl":
		return NewJSONLCodec(), nil
	case "parquet":
		return NewParquetCodec(), nil
	default:
		return nil, fmt.Errorf("archive: codec %q: %w", name, ErrUnknownCodec)
	}
}

// -----------------------------------------------------------------------------
// JSONL Codec
// -----------------------------------------------------------------------------

type jsonlCodec struct{}

// NewJSONLCodec creates a codec writing one JSON object per pixel.
func NewJSONLCodec() Codec {
	return jsonlCodec{}
}

func (jsonlCodec) Name() string      { return "jsonl" }
func (jsonlCodec) Extension() string { return ".jsonl" }

func (jsonlCodec) Encode(w io.Writer, pixels []Pixel) error {
	enc := jsonCodec.NewEncoder(w)
	for i := range pixels {
		if err := enc.Encode(&pixels[i]); err != nil {
			return err
		}
	}
	return nil
}

func (jsonlCodec) Decode(r io.Reader) ([]Pixel, error) {
	var pixels []Pixel
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p Pixel
		if err := jsonCodec.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		pixels = append(pixels, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pixels, nil
}

// -----------------------------------------------------------------------------
// Parquet Codec
// -----------------------------------------------------------------------------

// ParquetCompression specifies internal Parquet compression.
type ParquetCompression int

// Parquet compression options for internal file compression.
const (
	ParquetCompressionNone ParquetCompression = iota
	ParquetCompressionSnappy
	ParquetCompressionGzip
)

// ParquetOption configures the Parquet codec.
type ParquetOption func(*parquetCodec)

// WithParquetCompression sets internal Parquet compression.
func WithParquetCompression(codec ParquetCompression) ParquetOption {
	return func(c *parquetCodec) {
		c.compression = codec
	}
}

type parquetCodec struct {
	compression ParquetCompression
	schema      *parquet.Schema
	columns     []string // column names in schema order
}

// NewParquetCodec creates a codec writing pixels as a three column Parquet
// file (y int32, x int32, v double). Parquet buffers the whole object to
// write its footer.
func NewParquetCodec(opts ...ParquetOption) Codec {
	c := &parquetCodec{compression: ParquetCompressionSnappy}
	for _, opt := range opts {
		opt(c)
	}
	c.schema = parquet.NewSchema("pixel", parquet.Group{
		"y": parquet.Int(32),
		"x": parquet.Int(32),
		"v": parquet.Leaf(parquet.DoubleType),
	})
	for _, f := range c.schema.Fields() {
		c.columns = append(c.columns, f.Name())
	}
	return c
}

func (c *parquetCodec) Name() string      { return "parquet" }
func (c *parquetCodec) Extension() string { return ".parquet" }

func (c *parquetCodec) Encode(w io.Writer, pixels []Pixel) error {
	var buf bytes.Buffer
	rows := parquet.NewBuffer(c.schema)
	for i := range pixels {
		if _, err := rows.WriteRows([]parquet.Row{c.pixelToRow(pixels[i])}); err != nil {
			return fmt.Errorf("parquet: write row %d: %w", i, err)
		}
	}

	pw := parquet.NewWriter(&buf, c.schema, c.compressionOption())
	if _, err := pw.WriteRowGroup(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("parquet: write row group: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}
	_, err := io.Copy(w, &buf)
	return err
}

func (c *parquetCodec) Decode(r io.Reader) ([]Pixel, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if file.NumRows() == 0 {
		return nil, nil
	}

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	pixels := make([]Pixel, 0, file.NumRows())
	rows := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(rows)
		for i := 0; i < n; i++ {
			pixels = append(pixels, c.rowToPixel(rows[i]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read rows: %w", ErrInvalidFormat, err)
		}
	}
	return pixels, nil
}

func (c *parquetCodec) compressionOption() parquet.WriterOption {
	switch c.compression {
	case ParquetCompressionSnappy:
		return parquet.Compression(&parquet.Snappy)
	case ParquetCompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	default:
		return parquet.Compression(&parquet.Uncompressed)
	}
}

// pixelToRow builds a row in schema column order.
func (c *parquetCodec) pixelToRow(p Pixel) parquet.Row {
	row := make(parquet.Row, len(c.columns))
	for i, name := range c.columns {
		var v parquet.Value
		switch name {
		case "y":
			v = parquet.Int32Value(p.Row)
		case "x":
			v = parquet.Int32Value(p.Col)
		case "v":
			v = parquet.DoubleValue(p.Value)
		}
		row[i] = v.Level(0, 0, i)
	}
	return row
}

func (c *parquetCodec) rowToPixel(row parquet.Row) Pixel {
	var p Pixel
	for i, name := range c.columns {
		if i >= len(row) {
			break
		}
		switch name {
		case "y":
			p.Row = row[i].Int32()
		case "x":
			p.Col = row[i].Int32()
		case "v":
			p.Value = row[i].Double()
		}
	}
	return p
}
