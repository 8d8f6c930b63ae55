package halcyon

// Codec converts between stored bytes and a Document.
type Codec interface {
	Parse(raw []byte) (Document, error)
	Serialize(doc Document) ([]byte, error)
}

// SectionCodec handles compound templates (settings, code and markup).
type SectionCodec struct{}

func (SectionCodec) Parse(raw []byte) (Document, error)     { return ParseSections(raw) }
func (SectionCodec) Serialize(doc Document) ([]byte, error) { return RenderSections(doc) }

// RawCodec treats the whole file as markup. Used by content-only types such
// as menus and content blocks.
type RawCodec struct{}

func (RawCodec) Parse(raw []byte) (Document, error) {
	return Document{Settings: map[string]Value{}, Markup: string(raw)}, nil
}

func (RawCodec) Serialize(doc Document) ([]byte, error) {
	return []byte(doc.Markup), nil
}
