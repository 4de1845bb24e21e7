package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Simplici0/meshquote/internal/leads"
	"github.com/Simplici0/meshquote/internal/meshio"
	"github.com/Simplici0/meshquote/internal/metrics"
	"github.com/Simplici0/meshquote/internal/preview"
)

const (
	multipartMemory     = 32 << 20
	leadDeliveryTimeout = 10 * time.Second
	quoteReceivedMsg    = "Quote request received successfully."
)

type server struct {
	log      zerolog.Logger
	analyzer *analyzer
	previews *preview.Store
	sink     leads.Sink
	metrics  *metrics.Metrics

	revision    string
	maxUpload   int64
	corsOrigins []string
	now         func() time.Time
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/send-quote", s.handleSendQuote)
	if s.previews != nil {
		r.Handle("/files/*", s.previews)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Backend is running"})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	// A model that trips a decoder or estimator bug is reported like any
	// other failed analysis.
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("analysis panicked")
		s.metrics.Analysis(metrics.OutcomeError, "", 0)
		writeJSON(w, http.StatusOK, map[string]string{"error": "Analysis failed."})
	}()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.Analysis(metrics.OutcomeTooLarge, "", 0)
			writeDetail(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit.")
			return
		}
		s.metrics.Analysis(metrics.OutcomeInvalid, "", 0)
		writeDetail(w, http.StatusUnprocessableEntity, "Expected a multipart form with a file field.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.metrics.Analysis(metrics.OutcomeInvalid, "", 0)
		writeDetail(w, http.StatusUnprocessableEntity, "Field required: file.")
		return
	}
	defer file.Close()

	log = log.With().Str("filename", header.Filename).Logger()

	ext, err := s.analyzer.registry.CheckExtension(header.Filename)
	if err != nil {
		s.metrics.Analysis(metrics.OutcomeUnsupported, "", 0)
		writeDetail(w, http.StatusBadRequest, "Supported files: "+strings.ToUpper(strings.Join(trimDots(s.analyzer.registry.Accepted()), ", ")))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Str("stage", "read").Msg("analysis failed")
		s.metrics.Analysis(metrics.OutcomeError, "", 0)
		writeJSON(w, http.StatusOK, map[string]string{"error": "Analysis failed."})
		return
	}

	result, err := s.analyzer.analyze(header.Filename, ext, data)
	if err != nil {
		log.Warn().Err(err).Str("stage", "decode").Msg("analysis failed")
		s.metrics.Analysis(metrics.OutcomeError, "", 0)
		writeJSON(w, http.StatusOK, map[string]string{"error": clientMessage(err)})
		return
	}

	for _, attempt := range result.summary.Attempts {
		if attempt.Err != nil {
			log.Debug().Err(attempt.Err).Str("stage", string(attempt.Method)).Msg("volume stage skipped")
		}
	}

	s.attachPreviews(log, &result, ext, data)

	log.Info().
		Float64("volume_cm3", result.analysis.Geometry.VolumeCM3).
		Str("volume_method", string(result.summary.Method)).
		Bool("rescaled", result.summary.Rescaled).
		Msg("model analyzed")
	s.metrics.Analysis(metrics.OutcomeOK, string(result.summary.Method), time.Since(start))

	writeJSON(w, http.StatusOK, result.analysis)
}

// attachPreviews stores the upload and a GLB preview. Failures are logged
// and leave the URLs empty.
func (s *server) attachPreviews(log zerolog.Logger, result *measured, ext string, data []byte) {
	if s.previews == nil {
		return
	}

	id := preview.NewID()
	if err := s.previews.Put(id+ext, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	}); err != nil {
		log.Warn().Err(err).Msg("store upload copy")
	} else {
		result.analysis.FileURL = "/files/" + id + ext
	}

	if err := s.previews.Put(id+".glb", func(w io.Writer) error {
		return meshio.WriteGLB(w, result.mesh)
	}); err != nil {
		log.Warn().Err(err).Msg("export glb preview")
	} else {
		result.analysis.PreviewURL = "/files/" + id + ".glb"
	}
}

func (s *server) handleSendQuote(w http.ResponseWriter, r *http.Request) {
	log := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	req, err := leads.DecodeRequest(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.metrics.Lead(metrics.OutcomeInvalid)
		var verr *leads.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Fields})
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	lead := req.Lead(uuid.NewString(), s.now(), s.revision)

	if s.sink != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), leadDeliveryTimeout)
		defer cancel()
		if err := s.sink.Deliver(ctx, lead); err != nil {
			s.recordSinkFailures(err)
			log.Error().Err(err).Str("lead_id", lead.ID).Msg("deliver quote request")
		}
	}

	s.metrics.Lead(metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, map[string]string{"message": quoteReceivedMsg})
}

func (s *server) recordSinkFailures(err error) {
	var joined interface{ Unwrap() []error }
	errs := []error{err}
	if errors.As(err, &joined) {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var serr *leads.SinkError
		if errors.As(e, &serr) {
			s.metrics.SinkFailure(serr.Sink)
			continue
		}
		s.metrics.SinkFailure(s.sink.Name())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func trimDots(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.TrimPrefix(e, ".")
	}
	return out
}
