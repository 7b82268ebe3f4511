package queue

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

func TestDecodePayload(t *testing.T) {
	id := uuid.NewString()

	p, err := DecodePayload(PDFProcessing, []byte(`{"operation":"convert_to_markdown","documentId":"`+id+`"}`))
	require.NoError(t, err)
	pdf, ok := p.(PDFProcessingPayload)
	require.True(t, ok)
	assert.Equal(t, id, pdf.DocumentID)
	assert.Equal(t, PDFProcessing, p.Queue())
	assert.Equal(t, id, p.Subject())

	p, err = DecodePayload(DocumentIndexing, []byte(`{"documentId":"`+id+`"}`))
	require.NoError(t, err)
	assert.IsType(t, DocumentIndexingPayload{}, p)

	_, err = DecodePayload(PDFProcessing, []byte(`{"operation":"ocr","documentId":"`+id+`"}`))
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidArgument))

	_, err = DecodePayload(ConvertToMarkdown, []byte(`{"documentId":"not-a-uuid"}`))
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidArgument))

	_, err = DecodePayload(ConvertToMarkdown, []byte(`{`))
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidArgument))

	_, err = DecodePayload("emails", []byte(`{}`))
	assert.True(t, errors.Is(err, pkgerrors.ErrUnknownQueue))
}

func TestParseName(t *testing.T) {
	for _, n := range Names() {
		got, err := ParseName(string(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	_, err := ParseName("nope")
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownQueue)
}
