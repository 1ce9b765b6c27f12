// Package archive persists Scene datasets to object storage and loads them
// back.
//
// An archive is a directory-like prefix holding one manifest and one data
// object per dataset. Data objects hold the valid pixels of a 2D array as
// sparse (row, column, value) records, serialized by a Codec and wrapped by a
// Compressor. Missing (NaN) pixels are not stored. The manifest is written
// last, so an archive without one is incomplete and ignored by readers.
//
// Writer implements scene.Writer and Reader implements scene.Reader, so an
// archive can be the output of one Scene and the input of the next.
package archive

import (
	"context"
	"errors"
	"io"

	"github.com/zeebo/errs"
)

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system.
//
// Implementations may target filesystems, S3, or other object stores.
type Store interface {
	// Put writes data to the given path. Existing paths are never
	// overwritten; Put returns ErrPathExists instead.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// -----------------------------------------------------------------------------
// Codec interface
// -----------------------------------------------------------------------------

// Pixel is one valid array element.
type Pixel struct {
	Row   int32   `json:"y"`
	Col   int32   `json:"x"`
	Value float64 `json:"v"`
}

// Codec serializes pixel records.
//
// Codecs are orthogonal to storage and compression.
type Codec interface {
	// Name returns the codec identifier recorded in manifests.
	Name() string

	// Extension returns the data object suffix, for example ".jsonl".
	Extension() string

	// Encode writes pixels to w.
	Encode(w io.Writer, pixels []Pixel) error

	// Decode reads every pixel from r.
	Decode(r io.Reader) ([]Pixel, error)
}

// -----------------------------------------------------------------------------
// Compressor interface
// -----------------------------------------------------------------------------

// Compressor handles compression and decompression of data streams.
type Compressor interface {
	// Name returns the compressor identifier (for example, "gzip", "zstd", "noop").
	Name() string

	// Extension returns the file extension (for example, ".gz", ".zst", "").
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error is the class of archive read and write failures.
var Error = errs.Class("archive")

var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errors.New("path exists")

	// ErrInvalidPath indicates a path that would escape the storage root.
	ErrInvalidPath = errors.New("invalid path: escapes storage root")

	// ErrInvalidFormat indicates a data object or manifest that cannot be
	// decoded.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnsupportedData indicates a dataset the archive cannot represent,
	// such as an array that is not two dimensional.
	ErrUnsupportedData = errors.New("unsupported data")

	// ErrUnknownCodec indicates a manifest naming a codec this package lacks.
	ErrUnknownCodec = errors.New("unknown codec")

	// ErrUnknownCompressor indicates a manifest naming an unknown compressor.
	ErrUnknownCompressor = errors.New("unknown compressor")
)
