package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/mortgage-calculator/internal/snapshot"
	"github.com/iwvelando/mortgage-calculator/pkg/bulk"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/format"
	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"go.uber.org/zap"
)

//go:embed templates/*
var templateFiles embed.FS

// Options configures the handler. A nil Store keeps the snapshot in memory
// and a nil Money shows amounts in the default currency.
type Options struct {
	MaxUploadSize int64
	Version       string
	Money         *format.Money
	Store         snapshot.Store
}

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
	money         *format.Money
	store         snapshot.Store
	calc          *loans.Calculator
	processor     *bulk.Processor
	page          *template.Template
}

// NewHandler constructs the HTTP handler that serves the calculator form and
// the JSON API.
func NewHandler(logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxUploadSize := opts.MaxUploadSize
	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	money := opts.Money
	if money == nil {
		money, _ = format.NewMoney(constants.DefaultCurrency)
	}

	store := opts.Store
	if store == nil {
		store = snapshot.NewMemoryStore()
	}

	calc := loans.NewCalculator(logger)
	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		version:       trimmedVersion,
		money:         money,
		store:         store,
		calc:          calc,
		processor:     bulk.NewProcessor(logger, calc),
	}

	h.page = template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
		"money": money.Format,
		"rate":  format.Rate,
		"optionalMoney": func(v *float64) string {
			if v == nil {
				return constants.BulkMissingMarker
			}
			return money.Format(*v)
		},
		"optionalRate": func(v *float64) string {
			if v == nil {
				return constants.BulkMissingMarker
			}
			return format.Rate(*v)
		},
		"optionalInt": func(v *int) string {
			if v == nil {
				return constants.BulkMissingMarker
			}
			return strconv.Itoa(*v)
		},
	}).ParseFS(templateFiles, "templates/index.html.tmpl"))

	mux := http.NewServeMux()

	// HTML form
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/reset", h.handleReset)
	mux.HandleFunc("/bulk", h.handleBulkPage)

	// JSON API
	mux.HandleFunc("/api/calculate", h.handleCalculate)
	mux.HandleFunc("/api/bulk", h.handleBulk)
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

// pageView is the data rendered by the index template.
type pageView struct {
	Values   snapshot.Snapshot
	Persist  bool
	Errors   map[string]string
	Result   *loans.Result
	Bulk     *bulk.Report
	BulkErr  string
	Currency string
	Version  string
}

func defaultValues() snapshot.Snapshot {
	return snapshot.Snapshot{Type: constants.TypeRepayment}
}

func (h *handler) newView(values snapshot.Snapshot, persist bool) pageView {
	return pageView{
		Values:   values,
		Persist:  persist,
		Currency: h.money.Code(),
		Version:  h.version,
	}
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		stored, err := snapshot.LoadOrEmpty(r.Context(), h.logger, h.store)
		if err != nil {
			h.logger.Warn("failed to load snapshot",
				zap.String("op", "server.handleIndex"),
				zap.Error(err),
			)
		}
		h.render(w, http.StatusOK, h.newView(stored.Merge(defaultValues()), true))
	case http.MethodPost:
		h.handleFormSubmit(w, r)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}

	values := snapshot.Snapshot{
		Amount: strings.TrimSpace(r.PostFormValue("amount")),
		Rate:   strings.TrimSpace(r.PostFormValue("rate")),
		Years:  strings.TrimSpace(r.PostFormValue("years")),
		Type:   strings.TrimSpace(r.PostFormValue("type")),
	}
	persist := r.PostFormValue("persist") != ""
	h.persist(r, persist, values, "server.handleFormSubmit")

	view := h.newView(values, persist)
	in, fieldErrs := parseForm(values)
	if len(fieldErrs) > 0 {
		view.Errors = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			view.Errors[fe.Field] = fe.Message
		}
		h.render(w, http.StatusUnprocessableEntity, view)
		return
	}

	result, err := h.calc.Calculate(in)
	if err != nil {
		view.Errors = map[string]string{}
		for _, fe := range loans.FieldErrors(err) {
			view.Errors[fe.Field] = fe.Message
		}
		h.render(w, http.StatusUnprocessableEntity, view)
		return
	}

	view.Result = &result
	h.render(w, http.StatusOK, view)
}

// parseForm reads the raw form values leniently. Unparsable numbers fail
// the same range checks as out-of-range ones.
func parseForm(values snapshot.Snapshot) (loans.LoanInput, validation.FieldErrors) {
	amount, err := bulk.ParseNumber(values.Amount)
	if err != nil {
		amount = math.NaN()
	}
	rate, err := bulk.ParseNumber(values.Rate)
	if err != nil {
		rate = math.NaN()
	}
	years, err := bulk.ParseYears(values.Years)
	if err != nil {
		years = 0
	}

	fieldErrs := validation.ValidateLoanFields(amount, rate, years)
	kind, err := loans.ParseRepaymentType(values.Type)
	if err != nil {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldType, Message: validation.MessageType})
	}

	return loans.LoanInput{Amount: amount, AnnualRate: rate, Years: years, Type: kind}, fieldErrs
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	// A reset form returns to its defaults, persist checkbox included.
	values := defaultValues()
	h.persist(r, true, values, "server.handleReset")
	h.render(w, http.StatusOK, h.newView(values, true))
}

func (h *handler) handleBulkPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	stored, _ := snapshot.LoadOrEmpty(r.Context(), h.logger, h.store)
	view := h.newView(stored.Merge(defaultValues()), true)

	report, status, err := h.readUpload(w, r)
	if err != nil {
		view.BulkErr = err.Error()
		h.render(w, status, view)
		return
	}
	view.Bulk = &report
	h.render(w, http.StatusOK, view)
}

type calculateRequest struct {
	Amount  float64 `json:"amount"`
	Rate    float64 `json:"rate"`
	Years   int     `json:"years"`
	Type    string  `json:"type"`
	Months  int     `json:"months,omitempty"`
	Persist *bool   `json:"persist,omitempty"`
}

type errorResponse struct {
	Error  string                `json:"error"`
	Fields validation.FieldErrors `json:"fields,omitempty"`
}

func (h *handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), "server.handleCalculate")
		return
	}

	kind, err := loans.ParseRepaymentType(req.Type)
	if err != nil {
		h.respondFields(w, err, validation.FieldErrors{{Field: validation.FieldType, Message: validation.MessageType}})
		return
	}
	in := loans.LoanInput{Amount: req.Amount, AnnualRate: req.Rate, Years: req.Years, Type: kind}

	if req.Persist != nil {
		h.persist(r, *req.Persist, snapshot.FromInput(in), "server.handleCalculate")
	}

	months := req.Months
	if months == 0 {
		months = constants.FirstYearMonths
	}
	result, err := h.calc.CalculateMonths(in, months)
	if err != nil {
		h.respondFields(w, err, loans.FieldErrors(err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) respondFields(w http.ResponseWriter, err error, fields validation.FieldErrors) {
	h.logger.Debug("invalid loan input",
		zap.String("op", "server.handleCalculate"),
		zap.Error(err),
	)
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: fields})
}

func (h *handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	report, status, err := h.readUpload(w, r)
	if err != nil {
		h.respondErrorWithOp(w, status, err.Error(), "server.handleBulk")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
		var buf bytes.Buffer
		if err := bulk.WriteWorkbook(&buf, report); err != nil {
			h.logger.Error("failed to write results workbook",
				zap.String("op", "server.handleBulk"),
				zap.String("batch", report.ID),
				zap.Error(err),
			)
			h.respondErrorWithOp(w, http.StatusInternalServerError, "failed to build results workbook", "server.handleBulk")
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "mortgage-results-"+report.ID+".xlsx"))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			h.logger.Warn("failed to send results workbook",
				zap.String("op", "server.handleBulk"),
				zap.String("batch", report.ID),
				zap.Error(err),
			)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// readUpload parses the multipart "file" field as a workbook and processes
// every record. The returned status applies only when err is non-nil.
func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) (bulk.Report, int, error) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return bulk.Report{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload exceeds limit of %d bytes", h.maxUploadSize)
		}
		return bulk.Report{}, http.StatusBadRequest, fmt.Errorf("failed to parse upload: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return bulk.Report{}, http.StatusBadRequest, errors.New("missing spreadsheet file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", "server.readUpload"),
				zap.Error(closeErr),
			)
		}
	}()

	records, err := bulk.ReadWorkbook(file)
	if err != nil {
		return bulk.Report{}, http.StatusBadRequest, fmt.Errorf("failed to read spreadsheet: %v", err)
	}

	report := h.processor.Process(header.Filename, records)
	h.logger.Info("bulk upload computed",
		zap.String("op", "server.readUpload"),
		zap.String("batch", report.ID),
		zap.Int("rows", len(report.Rows)),
		zap.Duration("duration", time.Since(start)),
	)
	return report, http.StatusOK, nil
}

func (h *handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSnapshot"

	switch r.Method {
	case http.MethodGet:
		snap, err := h.store.Load(r.Context())
		if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrCorrupt) {
			h.writeJSON(w, http.StatusNotFound, errorResponse{Error: snapshot.ErrNotFound.Error()})
			return
		}
		if err != nil {
			h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
			return
		}
		h.writeJSON(w, http.StatusOK, snap)
	case http.MethodPut:
		var snap snapshot.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode snapshot: %v", err), op)
			return
		}
		if err := h.store.Save(r.Context(), snap); err != nil {
			h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
			return
		}
		h.writeJSON(w, http.StatusOK, snap)
	case http.MethodDelete:
		if err := h.store.Clear(r.Context()); err != nil {
			h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// persist applies the persistence rule; failures are logged, never shown.
func (h *handler) persist(r *http.Request, enabled bool, values snapshot.Snapshot, op string) {
	if err := snapshot.Persist(r.Context(), h.store, enabled, values); err != nil {
		h.logger.Warn("failed to update snapshot",
			zap.String("op", op),
			zap.Bool("persist", enabled),
			zap.Error(err),
		)
	}
}

func (h *handler) render(w http.ResponseWriter, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.page.Execute(w, view); err != nil {
		h.logger.Error("failed to render page",
			zap.String("op", "server.render"),
			zap.Error(err),
		)
	}
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
