package queue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

const OperationConvertToMarkdown = "convert_to_markdown"

// Payload is the closed set of job inputs. The unexported marker keeps implementations in this package.
type Payload interface {
	Queue() Name
	// Subject is the id progress events for this job are published under.
	Subject() string
	isPayload()
}

type PDFProcessingPayload struct {
	Operation  string `json:"operation" validate:"required,oneof=convert_to_markdown"`
	DocumentID string `json:"documentId" validate:"required,uuid"`
}

type ConvertToMarkdownPayload struct {
	DocumentID string `json:"documentId" validate:"required,uuid"`
}

type DocumentIndexingPayload struct {
	DocumentID string `json:"documentId" validate:"required,uuid"`
}

func (PDFProcessingPayload) Queue() Name     { return PDFProcessing }
func (ConvertToMarkdownPayload) Queue() Name { return ConvertToMarkdown }
func (DocumentIndexingPayload) Queue() Name  { return DocumentIndexing }

func (p PDFProcessingPayload) Subject() string     { return p.DocumentID }
func (p ConvertToMarkdownPayload) Subject() string { return p.DocumentID }
func (p DocumentIndexingPayload) Subject() string  { return p.DocumentID }

func (PDFProcessingPayload) isPayload()     {}
func (ConvertToMarkdownPayload) isPayload() {}
func (DocumentIndexingPayload) isPayload()  {}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the payload's field constraints.
func Validate(p Payload) error {
	if p == nil {
		return fmt.Errorf("nil payload: %w", pkgerrors.ErrInvalidArgument)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%s payload: %v: %w", p.Queue(), err, pkgerrors.ErrInvalidArgument)
	}
	return nil
}

// DecodePayload parses raw JSON as the payload type owned by queue name and validates it.
func DecodePayload(name Name, raw []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch name {
	case PDFProcessing:
		var v PDFProcessingPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ConvertToMarkdown:
		var v ConvertToMarkdownPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case DocumentIndexing:
		var v DocumentIndexingPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%q: %w", name, pkgerrors.ErrUnknownQueue)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %v: %w", name, err, pkgerrors.ErrInvalidArgument)
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
