package api

// FilePart is one file attached to an upload call.
type FilePart struct {
	Field    string
	FileName string
	Content  []byte
}

// PostCall describes a raw upload: an absolute URL with form fields and
// optional file parts, sent as multipart/form-data.
type PostCall struct {
	url     string
	retries int
	form    []Param
	files   []FilePart
	index   map[string]int
}

// PostBuilder accumulates fields for a PostCall.
type PostBuilder struct {
	call PostCall
}

// NewPost starts building an upload call to the given absolute URL.
func NewPost(url string) *PostBuilder {
	return &PostBuilder{call: PostCall{
		url:   url,
		index: make(map[string]int),
	}}
}

// Field adds a form field unless the value is empty.
func (b *PostBuilder) Field(key, value string) *PostBuilder {
	if value == "" {
		return b
	}
	if i, ok := b.call.index[key]; ok {
		b.call.form[i].Value = value
		return b
	}
	b.call.index[key] = len(b.call.form)
	b.call.form = append(b.call.form, Param{Key: key, Value: value})
	return b
}

// File attaches a file part.
func (b *PostBuilder) File(field, fileName string, content []byte) *PostBuilder {
	b.call.files = append(b.call.files, FilePart{
		Field:    field,
		FileName: fileName,
		Content:  content,
	})
	return b
}

// Retries sets the retry budget for the upload.
func (b *PostBuilder) Retries(n int) *PostBuilder {
	if n < 0 {
		n = 0
	}
	b.call.retries = n
	return b
}

// Build seals the upload descriptor.
func (b *PostBuilder) Build() *PostCall {
	c := b.call
	return &c
}

// URL returns the upload target.
func (c *PostCall) URL() string { return c.url }

// Retries returns the retry budget.
func (c *PostCall) Retries() int { return c.retries }

// Form returns the form fields in insertion order.
func (c *PostCall) Form() []Param {
	out := make([]Param, len(c.form))
	copy(out, c.form)
	return out
}

// Files returns the attached file parts.
func (c *PostCall) Files() []FilePart {
	out := make([]FilePart, len(c.files))
	copy(out, c.files)
	return out
}
