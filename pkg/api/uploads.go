package api

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/tasks"
)

const multipartMemory = 8 << 20

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads a multipart form. Files beyond multipartMemory are
// spooled to temporary files which are removed by the returned cleanup.
func (s *Server) parseMultipart(r *http.Request) (func(), error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return func() {}, apierr.Validation("attachments", "Request body too large")
		}
		return func() {}, apierr.BadRequest("invalid multipart form")
	}
	return func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}, nil
}

// formFiles opens the files posted under field. The returned closer must be
// called once the uploads have been consumed.
func (s *Server) formFiles(r *http.Request, field string) ([]tasks.Upload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	if r.MultipartForm == nil {
		return nil, closeAll, nil
	}

	headers := r.MultipartForm.File[field]
	uploads := make([]tasks.Upload, 0, len(headers))
	for _, fh := range headers {
		if max := s.config.Limits.MaxUploadBytes; max > 0 && fh.Size > max {
			closeAll()
			return nil, func() {}, apierr.Validation(field,
				fmt.Sprintf("File %s exceeds the maximum size of %d bytes", fh.Filename, max))
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apierr.BadRequest("failed to read uploaded file")
		}
		files = append(files, f)

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		uploads = append(uploads, tasks.Upload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}
