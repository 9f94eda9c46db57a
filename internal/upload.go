package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// UploadHandler receives files. Multipart bodies go through the parameter
// parser, each file field streamed to the sink. Any other body is treated
// as one raw file and streamed to the sink in chunks.
type UploadHandler struct {
	sink       UploadFunc
	onComplete HandlerFunc
	onAbort    func(req *Request, filename string)
}

// NewUploadHandler creates an upload handler writing to sink.
func NewUploadHandler(sink UploadFunc) *UploadHandler {
	return &UploadHandler{sink: sink}
}

// OnComplete sets the handler that answers once the upload is stored.
// Without one the response is 200 "Upload OK".
func (h *UploadHandler) OnComplete(fn HandlerFunc) *UploadHandler {
	h.onComplete = fn
	return h
}

// OnAbort sets a callback run for every file that was started but not
// finished when the upload fails, so the sink can discard partial data.
func (h *UploadHandler) OnAbort(fn func(req *Request, filename string)) *UploadHandler {
	h.onAbort = fn
	return h
}

// ServeRequest implements Handler.
func (h *UploadHandler) ServeRequest(req *Request, res *Response) error {
	if h.sink == nil {
		return ErrInternal("Upload not configured", WithError(ErrNoUploadSink))
	}

	sink := h.uploadSink()
	var err error
	if req.IsMultipart() {
		err = req.parseParamsWith(sink)
	} else {
		err = h.receiveRaw(req, sink)
	}
	if err != nil {
		if h.onAbort != nil {
			for name := range req.unfinished {
				h.onAbort(req, name)
			}
		}
		return err
	}

	if h.onComplete != nil {
		return h.onComplete(req, res)
	}
	return res.Send(http.StatusOK, "text/plain; charset=utf-8", "Upload OK")
}

// uploadSink wraps the sink to record on the request every file that got
// chunks but no successful last=true write. Endpoints serving the handler
// use it for multipart parsing, so parameters read by middleware or filters
// still stream files here.
func (h *UploadHandler) uploadSink() UploadFunc {
	if h.sink == nil {
		return nil
	}
	return func(req *Request, filename string, offset int64, data []byte, last bool) error {
		err := h.sink(req, filename, offset, data, last)
		switch {
		case last && err == nil:
			delete(req.unfinished, filename)
		case req.unfinished == nil:
			req.unfinished = map[string]struct{}{filename: {}}
		default:
			req.unfinished[filename] = struct{}{}
		}
		return err
	}
}

// receiveRaw streams the body to the sink. The sink sees last=true exactly
// once, on the final chunk, even for an empty body.
func (h *UploadHandler) receiveRaw(req *Request, sink UploadFunc) error {
	limits := req.limits
	if req.ContentLength() > limits.MaxUploadSize {
		return ErrPayloadTooLarge("Upload too large", WithError(ErrBodyTooLarge))
	}

	filename := req.Filename()
	if filename == "" {
		return ErrBadRequest("Missing upload file name")
	}

	body := req.HTTP().Body
	if body == nil {
		body = http.NoBody
	}

	// One chunk is held back so the final write can carry last=true.
	var (
		offset  int64
		pending []byte
		buf     = make([]byte, limits.ChunkSize)
	)
	flush := func(last bool) error {
		if err := sink(req, filename, offset, pending, last); err != nil {
			return ErrInternal("Failed to store upload", WithError(err))
		}
		offset += int64(len(pending))
		pending = pending[:0]
		return nil
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if offset+int64(len(pending))+int64(n) > limits.MaxUploadSize {
				return ErrPayloadTooLarge("Upload too large", WithError(ErrBodyTooLarge))
			}
			if len(pending) > 0 {
				if ferr := flush(false); ferr != nil {
					return ferr
				}
			}
			pending = append(pending, buf[:n]...)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if cl := req.ContentLength(); cl >= 0 && offset+int64(len(pending)) != cl {
				return ErrBadRequest("Incomplete upload",
					WithError(fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, offset+int64(len(pending)), cl)))
			}
			if err := flush(true); err != nil {
				return err
			}
			req.Logger().DebugContext(req.Context(), "raw upload stored",
				slog.String("filename", filename),
				slog.Int64("size", offset))
			return nil
		case isTimeout(err):
			if cerr := req.Context().Err(); cerr != nil {
				return cerr
			}
		default:
			return ErrBadRequest("Failed to read upload", WithError(err))
		}
	}
}
