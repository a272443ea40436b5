// Package pdfmerge assembles single page pdfs into one document.
package pdfmerge

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config directory in the user's home
	api.DisableConfigDir()
}

var (
	ErrFinalized = errors.New("document was already finalized")
	ErrEmpty     = errors.New("document has no pages")
)

// Document is an ordered sequence of pages. Appended pdfs are validated
// right away but only merged once the document is needed as a whole.
type Document struct {
	merged  []byte
	pending [][]byte
	pages   int

	pruned     bool
	compressed bool
}

func New() *Document {
	return &Document{}
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Append adds the pages of pdf after the current last page.
func (d *Document) Append(pdf []byte) error {
	if d.pruned || d.compressed {
		return ErrFinalized
	}
	count, err := api.PageCount(bytes.NewReader(pdf), configuration())
	if err != nil {
		return fmt.Errorf("read appended pdf: %w", err)
	}
	d.pending = append(d.pending, pdf)
	d.pages += count
	return nil
}

func (d *Document) PageCount() int {
	return d.pages
}

func (d *Document) flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	parts := d.pending
	if d.merged != nil {
		parts = append([][]byte{d.merged}, parts...)
	}
	if len(parts) == 1 {
		d.merged = parts[0]
		d.pending = nil
		return nil
	}

	readers := make([]io.ReadSeeker, len(parts))
	for i, part := range parts {
		readers[i] = bytes.NewReader(part)
	}
	var out bytes.Buffer
	err := api.MergeRaw(readers, &out, false, configuration())
	if err != nil {
		return fmt.Errorf("merge %d pdfs: %w", len(parts), err)
	}
	d.merged = out.Bytes()
	d.pending = nil
	return nil
}

func (d *Document) rewrite(conf *model.Configuration, optimize bool) error {
	if d.pages == 0 {
		return ErrEmpty
	}
	err := d.flush()
	if err != nil {
		return err
	}

	ctx, err := api.ReadContext(bytes.NewReader(d.merged), conf)
	if err != nil {
		return err
	}
	if optimize {
		err = api.ValidateContext(ctx)
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		err = api.OptimizeContext(ctx)
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}

	var out bytes.Buffer
	err = api.WriteContext(ctx, &out)
	if err != nil {
		return err
	}
	d.merged = out.Bytes()
	return nil
}

// Prune drops unreferenced objects and deduplicates shared resources like
// fonts and images. No pages can be appended afterwards.
func (d *Document) Prune() error {
	if d.pruned {
		return nil
	}
	err := d.rewrite(configuration(), true)
	if err != nil {
		return fmt.Errorf("prune document: %w", err)
	}
	d.pruned = true
	return nil
}

// Compress rewrites the document using object and cross reference streams.
// No pages can be appended afterwards.
func (d *Document) Compress() error {
	if d.compressed {
		return nil
	}
	conf := configuration()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	err := d.rewrite(conf, false)
	if err != nil {
		return fmt.Errorf("compress document: %w", err)
	}
	d.compressed = true
	return nil
}

// Bytes returns the serialized document, nil if it has no pages.
func (d *Document) Bytes() ([]byte, error) {
	err := d.flush()
	if err != nil {
		return nil, err
	}
	return d.merged, nil
}
