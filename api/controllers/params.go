package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderplanner/api/validators"
	"github.com/angelmondragon/orderplanner/internal/planning"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
)

// weekKeyFromPath reads {year}/{week} and validates the ISO week.
func weekKeyFromPath(r *http.Request) (planning.WeekKey, error) {
	year, err := validators.ParsePathInt(r, "year", 1970, 9999)
	if err != nil {
		return planning.WeekKey{}, err
	}
	week, err := validators.ParsePathInt(r, "week", 1, 53)
	if err != nil {
		return planning.WeekKey{}, err
	}
	key := planning.WeekKey{Year: year, Week: week}
	if err := key.Validate(); err != nil {
		return planning.WeekKey{}, err
	}
	return key, nil
}

// stringFromPath returns an unescaped, trimmed URL parameter.
func stringFromPath(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", name)
	}
	return value, nil
}
