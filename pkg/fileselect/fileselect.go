// Package fileselect extracts the file URLs a user picked in the portal's
// batch file-selection document.
package fileselect

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoFiles is returned when the document selects no files.
var ErrNoFiles = errors.New("no files selected")

const fileURLElement = "fileUrl"

// SelectedFileURLs returns the text of every fileUrl element, at any depth,
// in document order. Malformed XML is an error; a well-formed document
// without fileUrl elements yields ErrNoFiles.
func SelectedFileURLs(doc []byte) ([]string, error) {
	urls, err := elementTexts(doc, fileURLElement)
	if err != nil {
		return nil, fmt.Errorf("parse file selection: %w", err)
	}
	if len(urls) == 0 {
		return nil, ErrNoFiles
	}
	return urls, nil
}

// elementTexts returns the trimmed, non-empty text of every element whose
// local name is local. The text of a match includes its descendants.
func elementTexts(doc []byte, local string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var (
		texts  []string
		depth  int
		seenEl bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if !seenEl {
				return nil, errors.New("document has no root element")
			}
			if depth != 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return texts, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seenEl = true
			if t.Name.Local != local {
				depth++
				continue
			}
			text, err := innerText(dec)
			if err != nil {
				return nil, err
			}
			if text = strings.TrimSpace(text); text != "" {
				texts = append(texts, text)
			}
		case xml.EndElement:
			depth--
		}
	}
}

// innerText consumes tokens up to and including the end of the current
// element.
func innerText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return b.String(), nil
}
