package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

var validate = validator.New()

type createWorkLogRequest struct {
	Plate      string `json:"plate" validate:"required,max=32"`
	PhotoURL   string `json:"photoUrl" validate:"omitempty,max=512"`
	MechanicID string `json:"mechanicId" validate:"omitempty,max=64"`
}

type mechanicRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorOut struct {
	Error    string             `json:"error"`
	Details  []validationDetail `json:"details,omitempty"`
	Existing map[string]any     `json:"existing,omitempty"`
}

type listOut struct {
	WorkLogs []map[string]any `json:"workLogs"`
	Count    int              `json:"count"`
}

type statsOut struct {
	Day           string `json:"day"`
	JobsToday     int    `json:"jobsToday"`
	OpenJobs      int    `json:"openJobs"`
	TotalWorkedMs int64  `json:"totalWorkedMs"`
	TotalWorked   string `json:"totalWorked"`
}

type scanOut struct {
	ID          string         `json:"id"`
	Stage       scan.Stage     `json:"stage"`
	Plate       string         `json:"plate,omitempty"`
	WorkLogID   string         `json:"workLogId,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   int64          `json:"createdAt"`
	CompletedAt *int64         `json:"completedAt,omitempty"`
	StatusURL   string         `json:"statusUrl"`
	WorkLog     map[string]any `json:"workLog,omitempty"`
}

// decodeAndValidate reads a JSON body into v and runs struct validation.
// On failure the response has been written and false is returned.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorOut{Error: "validation failed", Details: formatValidationErrors(verrs)})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) []validationDetail {
	details := make([]validationDetail, 0, len(errs))
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s in length", err.Field(), err.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, validationDetail{Field: err.Field(), Message: message})
	}
	return details
}

// workLogOut renders l in its wire form plus the live elapsed time.
func workLogOut(l worklog.WorkLog, now time.Time) map[string]any {
	data, err := json.Marshal(l)
	if err != nil {
		return map[string]any{"id": l.ID}
	}
	out := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	_ = dec.Decode(&out)
	out["elapsedMs"] = worklog.Elapsed(l, now).Milliseconds()
	return out
}

func toScanOut(s scan.Scan) scanOut {
	out := scanOut{
		ID:        s.ID,
		Stage:     s.Stage,
		Plate:     s.Plate,
		WorkLogID: s.WorkLogID,
		CreatedAt: s.CreatedAt.UnixMilli(),
		StatusURL: path.Join(common.PathScans, s.ID),
	}
	if s.CompletedAt != nil {
		ms := s.CompletedAt.UnixMilli()
		out.CompletedAt = &ms
	}
	if s.Error != nil && *s.Error != "" {
		msg := "internal error"
		out.Error = &msg
	}
	return out
}
