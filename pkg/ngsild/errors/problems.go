package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ProblemReportContentType is the media type of an RFC 7807 problem report
const ProblemReportContentType string = "application/problem+json"

const problemBaseURI string = "https://uri.etsi.org/ngsi-ld/errors/"

// ProblemType describes one of the NGSI-LD error types, the status code it is
// reported with and the sentinel error it maps to on the client side
type ProblemType struct {
	Name   string
	Title  string
	Code   int
	Target error
}

func (pt ProblemType) URI() string {
	return problemBaseURI + pt.Name
}

var (
	AlreadyExists       = ProblemType{"AlreadyExists", "Already Exists", http.StatusConflict, ErrAlreadyExists}
	BadRequestData      = ProblemType{"BadRequestData", "Bad Request Data", http.StatusBadRequest, ErrBadRequest}
	InvalidRequest      = ProblemType{"InvalidRequest", "Invalid Request", http.StatusBadRequest, ErrInvalidRequest}
	InternalError       = ProblemType{"InternalError", "Internal Error", http.StatusInternalServerError, ErrInternal}
	ResourceNotFound    = ProblemType{"ResourceNotFound", "Not Found", http.StatusNotFound, ErrNotFound}
	NonexistentTenant   = ProblemType{"NonexistentTenant", "Non Existent Tenant", http.StatusNotFound, ErrUnknownTenant}
	UnauthorizedRequest = ProblemType{"UnauthorizedRequest", "Unauthorized Request", http.StatusUnauthorized, ErrUnauthorized}
)

var problemTypes = map[string]ProblemType{}

func init() {
	for _, pt := range []ProblemType{AlreadyExists, BadRequestData, InvalidRequest, InternalError, ResourceNotFound, NonexistentTenant, UnauthorizedRequest} {
		problemTypes[pt.URI()] = pt
	}
}

// Problem is a problem report that can be written to a response or returned as an error
type Problem struct {
	kind    ProblemType
	detail  string
	traceID string
}

func NewProblem(kind ProblemType, detail, traceID string) *Problem {
	return &Problem{kind: kind, detail: detail, traceID: traceID}
}

func NewBadRequestData(detail, traceID string) *Problem {
	return NewProblem(BadRequestData, detail, traceID)
}

func NewInvalidRequest(detail, traceID string) *Problem {
	return NewProblem(InvalidRequest, detail, traceID)
}

func NewInternalError(detail, traceID string) *Problem {
	return NewProblem(InternalError, detail, traceID)
}

func NewNotFound(detail, traceID string) *Problem {
	return NewProblem(ResourceNotFound, detail, traceID)
}

func (p *Problem) Error() string        { return p.detail }
func (p *Problem) Is(target error) bool { return target == p.kind.Target }

func (p *Problem) Type() string   { return p.kind.URI() }
func (p *Problem) Title() string  { return p.kind.Title }
func (p *Problem) Detail() string { return p.detail }

func (p *Problem) ResponseCode() int {
	if p.kind.Code == 0 {
		return http.StatusBadRequest
	}
	return p.kind.Code
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		TraceID string `json:"traceID,omitempty"`
	}{
		Type:    p.Type(),
		Title:   p.Title(),
		Detail:  p.detail,
		TraceID: p.traceID,
	})
}

func (p *Problem) WriteResponse(w http.ResponseWriter) {
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		http.Error(w, p.detail, http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", ProblemReportContentType)
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())
	w.Write(body)
}

func ReportNewBadRequestData(w http.ResponseWriter, detail, traceID string) {
	NewBadRequestData(detail, traceID).WriteResponse(w)
}

func ReportNewInvalidRequest(w http.ResponseWriter, detail, traceID string) {
	NewInvalidRequest(detail, traceID).WriteResponse(w)
}

func ReportNewInternalError(w http.ResponseWriter, detail, traceID string) {
	NewInternalError(detail, traceID).WriteResponse(w)
}

func ReportNotFoundError(w http.ResponseWriter, detail, traceID string) {
	NewNotFound(detail, traceID).WriteResponse(w)
}

func ReportUnauthorizedRequest(w http.ResponseWriter, detail, traceID string) {
	NewProblem(UnauthorizedRequest, detail, traceID).WriteResponse(w)
}

// NewErrorFromProblemReport turns a problem report received from a context
// broker into an error that matches the corresponding sentinel
func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}{}

	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("failed to process problem report from context source: %s (%w)", err.Error(), ErrBadResponse)
	}

	if code == http.StatusNotFound {
		return NewNotFoundError(report.Detail)
	}

	if pt, ok := problemTypes[report.Type]; ok && pt.Target != ErrInternal {
		return newError(pt.Target, report.Detail)
	}

	return NewInternalError(
		fmt.Sprintf("[code: %d] unknown problem report of type \"%s\" with detail \"%s\" received", code, report.Type, report.Detail),
		"",
	)
}
