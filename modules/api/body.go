package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
)

// Body is a request payload. Encode is called once per logical call; the
// result is reused verbatim if the call is replayed.
type Body interface {
	Encode() (data []byte, contentType string, err error)
}

type jsonBody struct {
	value interface{}
}

// JSON returns a Body that marshals v as application/json.
func JSON(v interface{}) Body {
	return jsonBody{value: v}
}

func (b jsonBody) Encode() ([]byte, string, error) {
	data, err := json.Marshal(b.value)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode JSON body: %w", err)
	}
	return data, "application/json", nil
}

// File is one binary part of a multipart body.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Content     io.Reader
}

type multipartBody struct {
	fields map[string]string
	files  []File
}

// Multipart returns a Body encoded as multipart/form-data.
func Multipart(fields map[string]string, files ...File) Body {
	return multipartBody{fields: fields, files: files}
}

func (b multipartBody) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, b.fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, f := range b.files {
		part, err := createFilePart(w, f)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func createFilePart(w *multipart.Writer, f File) (io.Writer, error) {
	if f.Content == nil {
		return nil, fmt.Errorf("file %s has no content", f.Field)
	}
	if f.ContentType == "" {
		return w.CreateFormFile(f.Field, f.Filename)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
	h.Set("Content-Type", f.ContentType)
	return w.CreatePart(h)
}
