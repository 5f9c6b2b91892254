package agent

// AttachmentKind discriminates the Attachment tagged variant.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentTextFile AttachmentKind = "text_file"
	AttachmentPDF      AttachmentKind = "pdf"
)

// ContentRef is the tagged variant of how an attachment's bytes are carried:
// inline binary, base64-encoded text, or an external URL. Exactly one field
// should be populated; callers that construct a ContentRef directly are
// responsible for that invariant, since the zero value of all three
// (empty/nil) is also a valid "no content yet" state during staged uploads.
type ContentRef struct {
	BinaryBytes []byte
	Base64      string
	URL         string
}

// Attachment is the tagged variant `Image | Audio | Video | TextFile | PDF`
// with either BinaryBytes, Base64, or URL content, carrying a MIME type and
// an optional format hint (e.g. "png", "mp3", "mp4"). Binary contents are
// opaque byte sequences; this module never inspects them.
type Attachment struct {
	Kind       AttachmentKind
	MIMEType   string
	FormatHint string
	Content    ContentRef
}

// NewBytesAttachment constructs an attachment carrying inline binary bytes.
func NewBytesAttachment(kind AttachmentKind, mimeType, formatHint string, data []byte) Attachment {
	return Attachment{Kind: kind, MIMEType: mimeType, FormatHint: formatHint, Content: ContentRef{BinaryBytes: data}}
}

// NewBase64Attachment constructs an attachment carrying base64-encoded content.
func NewBase64Attachment(kind AttachmentKind, mimeType, formatHint, base64Data string) Attachment {
	return Attachment{Kind: kind, MIMEType: mimeType, FormatHint: formatHint, Content: ContentRef{Base64: base64Data}}
}

// NewURLAttachment constructs an attachment referencing external content by URL.
func NewURLAttachment(kind AttachmentKind, mimeType, formatHint, url string) Attachment {
	return Attachment{Kind: kind, MIMEType: mimeType, FormatHint: formatHint, Content: ContentRef{URL: url}}
}
