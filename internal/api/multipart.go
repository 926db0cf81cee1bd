package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

type FormFile struct {
	Field  string
	Name   string
	Reader io.Reader
}

type formField struct {
	name  string
	value string
}

// Form is an ordered multipart/form-data body.
type Form struct {
	fields []formField
	files  []FormFile
}

func NewForm() *Form {
	return &Form{}
}

func (f *Form) Set(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetIf adds the field only when value is non-empty.
func (f *Form) SetIf(name, value string) *Form {
	if value == "" {
		return f
	}
	return f.Set(name, value)
}

func (f *Form) AddFile(field, name string, r io.Reader) *Form {
	f.files = append(f.files, FormFile{Field: field, Name: name, Reader: r})
	return f
}

func (f *Form) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", field.name, err)
		}
	}

	for _, file := range f.files {
		part, err := w.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file %s: %w", file.Name, err)
		}

		if _, err := io.Copy(part, file.Reader); err != nil {
			return nil, "", fmt.Errorf("copying form file %s: %w", file.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}

// ProgressFunc receives upload progress as a whole percentage.
type ProgressFunc func(percent int)

type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct != p.last {
			p.last = pct
			p.progress(pct)
		}
	}

	return n, err
}

func (p *progressReader) Size() int64 {
	return p.total
}

// Upload posts form as multipart/form-data, reporting progress as the body is
// sent.
func (c *Client) Upload(ctx context.Context, path string, form *Form, progress ProgressFunc, target any) error {
	buf, contentType, err := form.encode()
	if err != nil {
		return fmt.Errorf("encoding upload: %w", err)
	}

	var body io.Reader = buf
	if progress != nil {
		body = &progressReader{r: buf, total: int64(buf.Len()), last: -1, progress: progress}
	}

	return c.Request(ctx, http.MethodPost, path, body, target, WithHeader("Content-Type", contentType))
}
