package content

import "context"

// Extension names a capability of an editing surface. Commands that belong to
// an extension are no-ops until it is registered.
type Extension string

const (
	ExtBold           Extension = "bold"
	ExtItalic         Extension = "italic"
	ExtStrike         Extension = "strike"
	ExtCode           Extension = "code"
	ExtHeading        Extension = "heading"
	ExtBulletList     Extension = "bulletList"
	ExtOrderedList    Extension = "orderedList"
	ExtBlockquote     Extension = "blockquote"
	ExtCodeBlock      Extension = "codeBlock"
	ExtHorizontalRule Extension = "horizontalRule"
	ExtHardBreak      Extension = "hardBreak"
	ExtImage          Extension = "image"
	ExtDocumentLink   Extension = "documentLink"

	ExtUnderline   Extension = "underline"
	ExtLink        Extension = "link"
	ExtTextAlign   Extension = "textAlign"
	ExtTable       Extension = "table"
	ExtTaskList    Extension = "taskList"
	ExtPlaceholder Extension = "placeholder"
)

// Core is registered synchronously; a surface is Ready as soon as it is.
var Core = []Extension{
	ExtBold, ExtItalic, ExtStrike, ExtCode, ExtHeading, ExtBulletList, ExtOrderedList,
	ExtBlockquote, ExtCodeBlock, ExtHorizontalRule, ExtHardBreak, ExtImage, ExtDocumentLink,
}

// Secondary is fetched by a Loader after the surface is usable.
var Secondary = []Extension{ExtUnderline, ExtLink, ExtTextAlign, ExtTable, ExtTaskList, ExtPlaceholder}

// Loader resolves the secondary extension set.
type Loader func(ctx context.Context) ([]Extension, error)

// SecondaryLoader resolves immediately with Secondary.
func SecondaryLoader(ctx context.Context) ([]Extension, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Secondary, nil
}

// markExtension maps a mark to the extension that provides it.
func markExtension(t MarkType) Extension {
	switch t {
	case MarkBold:
		return ExtBold
	case MarkItalic:
		return ExtItalic
	case MarkUnderline:
		return ExtUnderline
	case MarkStrike:
		return ExtStrike
	case MarkCode:
		return ExtCode
	case MarkLink:
		return ExtLink
	case MarkDocumentLink:
		return ExtDocumentLink
	}
	return ""
}

func listExtension(t NodeType) Extension {
	switch t {
	case NodeBulletList:
		return ExtBulletList
	case NodeOrderedList:
		return ExtOrderedList
	case NodeTaskList:
		return ExtTaskList
	}
	return ""
}
