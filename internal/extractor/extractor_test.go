package extractor

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with blank pages and a correct xref table.
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	buf.WriteString("%PDF-1.4\n")

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))

	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func TestHasPDFHeader(t *testing.T) {
	assert.True(t, HasPDFHeader([]byte("%PDF-1.7\n...")))
	assert.True(t, HasPDFHeader(append([]byte("junk before header "), []byte("%PDF-1.4")...)))
	assert.False(t, HasPDFHeader([]byte("PK\x03\x04 a zip file")))
	assert.False(t, HasPDFHeader(nil))

	late := append(bytes.Repeat([]byte{' '}, 2048), []byte("%PDF-1.4")...)
	assert.False(t, HasPDFHeader(late))
}

func TestInspectPDF(t *testing.T) {
	info, err := InspectPDF(buildPDF(3))
	require.NoError(t, err)

	assert.Equal(t, "1.4", info.Version)
	assert.Equal(t, 3, info.PageCount)
	assert.False(t, info.HasText, "blank pages carry no text")
}

func TestInspectPDFSinglePage(t *testing.T) {
	info, err := InspectPDF(buildPDF(1))
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)
}

func TestInspectPDFRejectsNonPDF(t *testing.T) {
	_, err := InspectPDF([]byte("hello world"))
	assert.Error(t, err)
}

func TestInspectPDFDoesNotPanicOnTruncatedInput(t *testing.T) {
	data := buildPDF(2)

	assert.NotPanics(t, func() {
		_, err := InspectPDF(data[:len(data)/2])
		assert.Error(t, err)
	})
}
