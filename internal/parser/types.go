package parser

import (
	"errors"
	"fmt"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

var (
	// ErrNoItems a spreadsheet form yielded no graded items
	ErrNoItems = errors.New("no valid items")
	// ErrNoRows a document form yielded no numbered table rows
	ErrNoRows = errors.New("no numbered table rows")
	// ErrNoMarkColumns a mark-mode header row has none of the configured keywords
	ErrNoMarkColumns = errors.New("no mark columns in header row")
	// ErrNoDocumentPart a .docx archive without word/document.xml
	ErrNoDocumentPart = errors.New("word/document.xml not found")
)

// Reader extracts one form from a source file
type Reader interface {
	Read(path string) (*model.Form, error)
}

// NewReader returns the reader matching the form's source format
func NewReader(settings config.FormSettings) (Reader, error) {
	switch settings.Source.Format {
	case config.FormatXLSX:
		return NewXLSXReader(settings), nil
	case config.FormatDOCX:
		return NewDocxReader(settings)
	default:
		return nil, fmt.Errorf("unsupported source format %q", settings.Source.Format)
	}
}
