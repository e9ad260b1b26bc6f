package parsers

import (
	"archive/zip"
	"bufio"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// documentResult wraps extracted text chunks as single-column records.
func documentResult(kind Kind, chunks []string) *Result {
	rows := make([]models.Row, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		rows = append(rows, models.Row{
			RowNumber: len(rows) + 1,
			Cells:     map[string]models.Value{ContentColumn: models.String(chunk)},
		})
	}
	return &Result{Kind: kind, Columns: []string{ContentColumn}, Rows: rows}
}

// parsePDF extracts plain text from each page, one record per page.
func parsePDF(path string) (*Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open pdf file")
	}
	defer f.Close()

	var chunks []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, apperrors.MalformedInput(err, "extract text from pdf page %d", i)
		}
		chunks = append(chunks, text)
	}

	return documentResult(KindPDF, chunks), nil
}

// parseDocx reads word/document.xml from the docx archive, one record per
// paragraph.
func parseDocx(path string) (*Result, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open docx archive")
	}
	defer archive.Close()

	var doc *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, apperrors.MalformedInput(
			io.ErrUnexpectedEOF, "docx archive has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open docx document part")
	}
	defer rc.Close()

	chunks, err := extractDocxParagraphs(rc)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "decode docx document part")
	}

	return documentResult(KindDocx, chunks), nil
}

// extractDocxParagraphs walks the WordprocessingML token stream collecting the
// text runs of each w:p element.
func extractDocxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var chunks []string
	var paragraph strings.Builder
	inParagraph := false
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraph.Reset()
			case "t":
				inText = inParagraph
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					chunks = append(chunks, paragraph.String())
				}
				inParagraph = false
			}
		}
	}

	return chunks, nil
}

// parseText splits a plain text file on blank lines, one record per paragraph
// block.
func parseText(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open text file")
	}
	defer f.Close()

	var chunks []string
	var block strings.Builder

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if block.Len() > 0 {
				chunks = append(chunks, block.String())
				block.Reset()
			}
			continue
		}
		if block.Len() > 0 {
			block.WriteByte('\n')
		}
		block.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.MalformedInput(err, "scan text file")
	}
	if block.Len() > 0 {
		chunks = append(chunks, block.String())
	}

	return documentResult(KindText, chunks), nil
}
