package strategy

import (
	"bytes"
	"os"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

const indentSpaces = 4

// ParseDocument parses a metadata document. path is only used for error context.
func ParseDocument(data []byte, path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errUtils.Parse(path, err)
	}
	if doc.Root() == nil {
		return nil, errUtils.Parse(path, errors.New("document has no root element"))
	}
	return doc, nil
}

// ReadDocument reads and parses a metadata document from disk.
func ReadDocument(path string) (*etree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ParseDocument(data, path)
}

// Serialize renders a document in canonical formatting: XML declaration, 4-space indentation.
func Serialize(doc *etree.Document) ([]byte, error) {
	out := newDocument(doc.Root().Copy())
	out.Indent(indentSpaces)

	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "serialize document")
	}
	return buf.Bytes(), nil
}

// newDocument wraps root in a fresh document carrying the XML declaration.
func newDocument(root *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(root)
	return doc
}

// newRoot creates an empty metadata root element in the metadata namespace.
func newRoot(tag string) *etree.Element {
	el := etree.NewElement(tag)
	el.CreateAttr("xmlns", metadata.Namespace)
	return el
}

// fullNameOf returns the text of the <fullName> child of el.
func fullNameOf(el *etree.Element) string {
	if fn := el.SelectElement("fullName"); fn != nil {
		return fn.Text()
	}
	return ""
}
