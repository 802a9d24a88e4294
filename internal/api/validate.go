package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"itinerary/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
		return false
	})
	v.RegisterStructValidation(tripInputLevel, model.TripInput{})
	return v
}

// tripInputLevel rejects repeated day indexes and repeated event ids.
func tripInputLevel(sl validator.StructLevel) {
	in := sl.Current().Interface().(model.TripInput)
	days := map[int]struct{}{}
	ids := map[string]struct{}{}
	for i, d := range in.Days {
		if _, dup := days[d.DayIndex]; dup {
			sl.ReportError(d.DayIndex, fmt.Sprintf("days[%d].dayIndex", i), "DayIndex", "unique", "")
		}
		days[d.DayIndex] = struct{}{}
		for j, e := range d.Events {
			if e.ID == "" {
				continue
			}
			if _, dup := ids[e.ID]; dup {
				sl.ReportError(e.ID, fmt.Sprintf("days[%d].events[%d]._id", i, j), "ID", "unique", "")
			}
			ids[e.ID] = struct{}{}
		}
	}
}

// validateStruct checks v against its validate tags and returns a readable error.
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "hhmm":
		return fmt.Sprintf("%s must be a HH:MM time", field)
	case "unique":
		return fmt.Sprintf("%s must be unique", field)
	case "isodate":
		return fmt.Sprintf("%s must be an ISO-8601 date", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
