package intake

import (
	"bytes"
	"io"
	"mime/multipart"
	"net"
	"strings"
)

// System-assigned record fields
const (
	FieldIP       = "ip"
	FieldDatetime = "datetime"
	FieldID       = "id"
)

// DatetimeLayout is the ISO-8601 layout used for the datetime field
const DatetimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Record is a submission as persisted by a content backend
type Record map[string]interface{}

// ID returns the backend id of the record as a string, or "" if absent
func (r Record) ID() string {
	return r.String(FieldID)
}

// String returns the named field as a string. Numbers are formatted; nil
// and missing fields yield "".
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return formatInt(int64(t))
		}
	case int:
		return formatInt(int64(t))
	case int64:
		return formatInt(t)
	}
	return ""
}

// Upload is a file attached to a submission
type Upload interface {
	// Filename is the client-supplied file name; empty means no file was attached
	Filename() string
	// Open returns a fresh reader over the file content
	Open() (io.ReadCloser, error)
}

type fileHeaderUpload struct {
	fh *multipart.FileHeader
}

// FromFileHeader adapts a multipart file header to an Upload
func FromFileHeader(fh *multipart.FileHeader) Upload {
	if fh == nil {
		return nil
	}
	return &fileHeaderUpload{fh: fh}
}

func (u *fileHeaderUpload) Filename() string { return u.fh.Filename }

func (u *fileHeaderUpload) Open() (io.ReadCloser, error) { return u.fh.Open() }

type bytesUpload struct {
	filename string
	data     []byte
}

// NewBytesUpload creates an Upload over an in-memory buffer
func NewBytesUpload(filename string, data []byte) Upload {
	return &bytesUpload{filename: filename, data: data}
}

func (u *bytesUpload) Filename() string { return u.filename }

func (u *bytesUpload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(u.data)), nil
}

// StoredFile describes an upload written to a BlobStore
type StoredFile struct {
	// Name is the derived file name
	Name string
	// Key is the storage key (equal to Name for the flat upload directory)
	Key string
	// Path is the reference embedded into the record
	Path string
	// Size is the number of bytes written
	Size int64
}

// Submission is one parsed form post
type Submission struct {
	// Token is the client-supplied idempotency token; may be empty
	Token string
	// Values holds the text fields of the form
	Values map[string][]string
	// Files holds the file fields of the form
	Files map[string][]Upload
	// RemoteAddr is the requester network address, with or without port
	RemoteAddr string
}

// Value returns the first value of a text field, trimmed
func (s Submission) Value(field string) string {
	if vs := s.Values[field]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// IP returns the requester host without port. It never returns "".
func (s Submission) IP() string {
	addr := strings.TrimSpace(s.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

// Receipt is the internal outcome of a submission. Accepted is always true
// once Submit returns without error; BackendErr carries the swallowed
// forwarding failure, if any.
type Receipt struct {
	Accepted   bool
	Duplicate  bool
	Collection string
	RecordID   string
	Record     Record
	Files      []StoredFile
	BackendErr error
}
