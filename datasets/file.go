package datasets

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/neurlang/s2v/config"
)

// File reads batches from a JSON lines file, gzip compressed when the name
// ends in .gz.
type File struct {
	Fs   afero.Fs
	Path string
}

// Pairs implements Generator. The file is reopened on every call.
func (f File) Pairs() (Iterator, error) {
	file, err := f.Fs.Open(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening batches")
	}
	it := &fileIterator{path: f.Path, closers: []io.Closer{file}}

	var r io.Reader = bufio.NewReaderSize(file, 1<<20)
	if strings.HasSuffix(f.Path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "%s", f.Path)
		}
		it.closers = append(it.closers, gz)
		r = gz
	}
	it.dec = json.NewDecoder(r)
	return it, nil
}

type fileIterator struct {
	path    string
	dec     *json.Decoder
	closers []io.Closer
	n       int
}

func (it *fileIterator) Next() (*Batch, error) {
	var b Batch
	if err := it.dec.Decode(&b); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "%s: batch %d", it.path, it.n)
	}
	if err := b.Check(); err != nil {
		return nil, errors.Wrapf(err, "%s: batch %d", it.path, it.n)
	}
	it.n++
	return &b, nil
}

func (it *fileIterator) Close() error {
	var first error
	for i := len(it.closers) - 1; i >= 0; i-- {
		if err := it.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FileBuilder builds generators over the batch files named in the configuration.
type FileBuilder struct {
	Fs afero.Fs
}

// TrainValidation implements Builder.
func (fb FileBuilder) TrainValidation(cfg *config.Config) (Generator, Generator, error) {
	if cfg.Training.Batches == "" || cfg.Validation.Batches == "" {
		return nil, nil, errors.Wrap(config.ErrInvalid, "training.batches and validation.batches are required")
	}
	for _, p := range []string{cfg.Training.Batches, cfg.Validation.Batches} {
		if _, err := fb.Fs.Stat(p); err != nil {
			return nil, nil, errors.Wrapf(err, "batches")
		}
	}
	return File{Fs: fb.Fs, Path: cfg.Training.Batches}, File{Fs: fb.Fs, Path: cfg.Validation.Batches}, nil
}

// Testing implements Builder. The batches of X.csv are X.batches.jsonl, or
// X.batches.jsonl.gz.
func (fb FileBuilder) Testing(cfg *config.Config, inputPath string) (Generator, error) {
	base := strings.TrimSuffix(inputPath, ".csv") + ".batches.jsonl"
	for _, p := range []string{base, base + ".gz"} {
		_, err := fb.Fs.Stat(p)
		if err == nil {
			return File{Fs: fb.Fs, Path: p}, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "batches for %s", inputPath)
		}
	}
	return nil, errors.Errorf("no batches for %s (looked for %s[.gz])", inputPath, base)
}
