package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/dunamismax/resizeflow/internal/pipeline"
	"github.com/rs/zerolog"
)

const (
	uploadField = "logo"

	// multipartOverhead covers boundaries and the small form fields sent with
	// the upload.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20

	usageRecordTimeout = 2 * time.Second
)

// resizeRequest is the validated form of a POST /resize call.
type resizeRequest struct {
	data        []byte
	filename    string
	mediaType   string
	info        pipeline.ImageInfo
	specs       []domain.OutputSpec
	opts        domain.RenderOptions
	forceSingle bool
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	s.metrics.activeRequests.Inc()
	defer s.metrics.activeRequests.Dec()

	req, err := s.readResizeRequest(w, r)
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	s.metrics.uploadBytes.Observe(float64(len(req.data)))

	src, err := s.processor.Decode(ctx, req.data)
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	defer src.Close()

	base := pipeline.BaseName(req.filename)
	archive := pipeline.IsArchive(req.specs, req.forceSingle)

	logger.Debug().
		Str("media_type", req.mediaType).
		Int("source_width", req.info.Width).
		Int("source_height", req.info.Height).
		Int("outputs", len(req.specs)).
		Bool("archive", archive).
		Msg("rendering")

	var (
		results  []pipeline.Result
		bytesOut int64
	)
	if archive && s.streamArchives {
		results, bytesOut = s.streamArchive(ctx, w, src, base, req)
	} else {
		results, bytesOut, err = s.respondBuffered(ctx, w, src, base, req)
		if err != nil {
			s.writeFailure(ctx, w, err)
			return
		}
	}

	kind := "single"
	if archive {
		kind = "archive"
	}
	s.metrics.responseKind.WithLabelValues(kind).Inc()

	s.recordUsage(ctx, domain.UsageLog{
		RequestID:      requestIDFromContext(ctx),
		ClientID:       clientFromContext(ctx),
		Outputs:        len(results),
		Archive:        archive,
		PixelsProduced: pixelsProduced(results),
		BytesIn:        int64(len(req.data)),
		BytesOut:       bytesOut,
		ComputeTimeMS:  time.Since(start).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	})
}

func (s *Server) readResizeRequest(w http.ResponseWriter, r *http.Request) (resizeRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return resizeRequest{}, s.uploadTooLarge()
		}
		return resizeRequest{}, &domain.ValidationError{Message: "request must be multipart/form-data"}
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return resizeRequest{}, &domain.ValidationError{Message: "logo file is required"}
		}
		return resizeRequest{}, &domain.ValidationError{Message: "logo file could not be read"}
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		return resizeRequest{}, s.uploadTooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		return resizeRequest{}, &domain.ValidationError{Message: "logo file could not be read"}
	}
	if int64(len(data)) > s.maxUploadBytes {
		return resizeRequest{}, s.uploadTooLarge()
	}
	if len(data) == 0 {
		return resizeRequest{}, &domain.ValidationError{Message: "logo file is empty"}
	}

	mediaType, err := pipeline.ResolveMediaType(header.Header.Get("Content-Type"), data)
	if err != nil {
		return resizeRequest{}, err
	}
	info, err := pipeline.Probe(data)
	if err != nil {
		return resizeRequest{}, err
	}

	var rawOutputs any
	if values := r.Form["outputs"]; len(values) > 0 {
		rawOutputs = values[0]
	}
	specs, err := domain.NormalizeOutputs(rawOutputs, domain.FallbackOutput{
		Width:  r.FormValue("width"),
		Height: r.FormValue("height"),
		Format: r.FormValue("format"),
	}, s.maxOutputs)
	if err != nil {
		return resizeRequest{}, err
	}

	opts, forceSingle, err := s.renderOptions(r)
	if err != nil {
		return resizeRequest{}, err
	}

	return resizeRequest{
		data:        data,
		filename:    header.Filename,
		mediaType:   mediaType,
		info:        info,
		specs:       specs,
		opts:        opts,
		forceSingle: forceSingle,
	}, nil
}

func (s *Server) renderOptions(r *http.Request) (domain.RenderOptions, bool, error) {
	opts := domain.DefaultRenderOptions()

	maintain, err := domain.ParseFlag("maintainAspect", formValue(r, "maintainAspect"), true)
	if err != nil {
		return opts, false, err
	}
	opts.MaintainAspect = maintain
	opts.Fit = domain.ParseFit(r.FormValue("fit"))

	jpegDefault := s.defaultJPEGQuality
	if jpegDefault <= 0 {
		jpegDefault = domain.DefaultJPEGQuality
	}
	webpDefault := s.defaultWebPQuality
	if webpDefault <= 0 {
		webpDefault = domain.DefaultWebPQuality
	}
	opts.JPEGQuality = domain.SanitizeQuality(formValue(r, "jpegQuality"), jpegDefault)
	opts.WebPQuality = domain.SanitizeQuality(formValue(r, "webpQuality"), webpDefault)

	single, err := domain.ParseFlag("single", formValue(r, "single"), false)
	if err != nil {
		return opts, false, err
	}
	forceSingle, err := domain.ParseFlag("forceSingle", formValue(r, "forceSingle"), false)
	if err != nil {
		return opts, false, err
	}

	return opts, single || forceSingle, nil
}

// formValue returns nil for an absent field so callers can tell it from "".
func formValue(r *http.Request, key string) any {
	values, ok := r.Form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return values[0]
}

func (s *Server) respondBuffered(ctx context.Context, w http.ResponseWriter, src pipeline.Source, base string, req resizeRequest) ([]pipeline.Result, int64, error) {
	agg, err := s.processor.Aggregate(ctx, src, base, req.specs, req.opts, req.forceSingle)
	if err != nil {
		return nil, 0, err
	}

	if !agg.Archive {
		writeAttachment(w, agg.Single.ContentType, agg.Single.Filename, agg.Single.Data)
		return agg.Results(), int64(len(agg.Single.Data)), nil
	}

	var buf bytes.Buffer
	if err := pipeline.WriteArchive(&buf, agg.Entries); err != nil {
		return nil, 0, err
	}
	writeAttachment(w, "application/zip", pipeline.ArchiveFilename(base), buf.Bytes())
	return agg.Entries, int64(buf.Len()), nil
}

// streamArchive commits a 200 before rendering. A failure after that point
// aborts the connection so the client never sees a truncated archive as valid.
func (s *Server) streamArchive(ctx context.Context, w http.ResponseWriter, src pipeline.Source, base string, req resizeRequest) ([]pipeline.Result, int64) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachmentDisposition(pipeline.ArchiveFilename(base)))
	w.WriteHeader(http.StatusOK)

	counter := &countingWriter{w: w}
	results, err := s.processor.StreamArchive(ctx, counter, src, base, req.specs, req.opts)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("entries_written", len(results)).Msg("archive stream aborted")
		panic(http.ErrAbortHandler)
	}
	return results, counter.n
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachmentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func attachmentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func (s *Server) uploadTooLarge() error {
	return fmt.Errorf("%w: logo must be at most %d MiB", domain.ErrUploadTooLarge, s.maxUploadBytes>>20)
}

// statusForError maps a request failure onto a status code and the message
// the caller may see. 5xx messages never carry internal detail.
func statusForError(err error) (int, string) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, domain.ErrAdmissionRejected):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrAuthNotConfigured):
		return http.StatusInternalServerError, domain.ErrAuthNotConfigured.Error()
	case errors.Is(err, domain.ErrAuthRejected):
		return http.StatusUnauthorized, domain.ErrAuthRejected.Error()
	case errors.Is(err, domain.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrSourceUnreadable):
		return http.StatusBadRequest, "unable to read image metadata"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "failed to process image"
	}
}

func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	logger := zerolog.Ctx(ctx)

	if pipeline.IsCanceled(err) {
		logger.Info().Err(err).Msg("client went away before the response was ready")
		return
	}

	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("resize failed")
	} else {
		logger.Info().Err(err).Int("status", status).Msg("rejected resize request")
	}
	writeError(w, status, message)
}

func (s *Server) recordUsage(ctx context.Context, entry domain.UsageLog) {
	s.metrics.observeUsage(entry)
	if s.usage == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRecordTimeout)
	defer cancel()
	if err := s.usage.Record(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("record usage failed")
	}
}

func pixelsProduced(results []pipeline.Result) int64 {
	var total int64
	for _, result := range results {
		total += int64(result.Spec.Width) * int64(result.Spec.Height)
	}
	return total
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
