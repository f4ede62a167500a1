package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory, the rest spills to temp files.
const maxUploadMemory = 32 << 20

// protocolRequest is the decoded body of a runner protocol call. Runners
// send JSON for plain calls and multipart forms when uploading files.
type protocolRequest struct {
	RunnerToken string   `json:"runnerToken"`
	JobToken    string   `json:"jobToken"`
	Message     string   `json:"message"`
	Progress    *float64 `json:"progress"`
	JobTypes    []string `json:"jobTypes"`

	Payload struct {
		InputLanguage string `json:"inputLanguage"`
	} `json:"payload"`

	// multipart uploads, keyed by form field
	files map[string][]*fileUpload
}

type fileUpload struct {
	filename string
	open     func() (io.ReadCloser, error)
}

func decodeProtocolRequest(r *http.Request) (*protocolRequest, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "multipart/form-data" {
		req := &protocolRequest{}
		if r.Body == nil || r.ContentLength == 0 {
			return req, nil
		}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	req := &protocolRequest{
		RunnerToken: r.FormValue("runnerToken"),
		JobToken:    r.FormValue("jobToken"),
		Message:     r.FormValue("message"),
		files:       make(map[string][]*fileUpload),
	}
	req.Payload.InputLanguage = r.FormValue("payload[inputLanguage]")

	if raw := r.FormValue("progress"); raw != "" {
		progress, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid progress %q", raw)
		}
		req.Progress = &progress
	}

	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			header := header
			req.files[field] = append(req.files[field], &fileUpload{
				filename: header.Filename,
				open: func() (io.ReadCloser, error) {
					return header.Open()
				},
			})
		}
	}

	return req, nil
}

// file returns the first upload of a form field, or nil
func (p *protocolRequest) file(field string) *fileUpload {
	uploads := p.files[field]
	if len(uploads) == 0 {
		return nil
	}
	return uploads[0]
}

// resultPayload converts the uploads of a success report into the engine's
// result payload. The returned closer releases the opened files.
func (p *protocolRequest) resultPayload() (*engine.ResultPayload, func(), error) {
	result := &engine.ResultPayload{
		InputLanguage: p.Payload.InputLanguage,
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	openInto := func(field string, dst *io.Reader, filename *string) error {
		upload := p.file(field)
		if upload == nil {
			return nil
		}
		f, err := upload.open()
		if err != nil {
			return err
		}
		closers = append(closers, f)
		*dst = f
		if filename != nil {
			*filename = upload.filename
		}
		return nil
	}

	if err := openInto("payload[videoFile]", &result.VideoFile, &result.VideoFilename); err != nil {
		closeAll()
		return nil, nil, err
	}
	if err := openInto("payload[resolutionPlaylistFile]", &result.ResolutionPlaylistFile, nil); err != nil {
		closeAll()
		return nil, nil, err
	}
	if err := openInto("payload[vttFile]", &result.VTTFile, nil); err != nil {
		closeAll()
		return nil, nil, err
	}

	return result, closeAll, nil
}

// updatePayload converts the uploads of a progress report into the engine's
// update payload. Files are keyed by their uploaded filename, live runners
// stream segments and playlists this way.
func (p *protocolRequest) updatePayload() (*engine.UpdatePayload, func(), error) {
	if len(p.files) == 0 {
		return &engine.UpdatePayload{}, func() {}, nil
	}

	payload := &engine.UpdatePayload{Files: make(map[string]io.Reader)}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	for _, uploads := range p.files {
		for _, upload := range uploads {
			if upload.filename == "" {
				continue
			}
			f, err := upload.open()
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, f)
			payload.Files[upload.filename] = f
		}
	}

	return payload, closeAll, nil
}

// clientIP extracts the caller address, honoring X-Forwarded-For when the
// orchestrator sits behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
