package parser

import (
	"fmt"
	"io"

	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

// TextParser handles flat annotated text: numbered headers, template
// markers and image anchors are recognized by the codec.
type TextParser struct {
	Codec *textcodec.Codec
}

func (p *TextParser) Parse(r io.Reader, filename string) (*Result, error) {
	src, err := io.ReadAll(io.LimitReader(r, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return decodeText(p.Codec, string(src), baseTitle(filename)), nil
}

func decodeText(codec *textcodec.Codec, text, title string) *Result {
	if codec == nil {
		codec = textcodec.New(nil)
	}
	dec := codec.Decode(text, nil)
	dec.Tree.Title = title
	return &Result{Tree: dec.Tree, Enabled: dec.Enabled, Ambiguities: dec.Ambiguities}
}
