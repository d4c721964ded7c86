package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/fedcoord/pkg/fl"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType = "application/json"

	MaxLimitSize = 100
)

type errorRes struct {
	Err string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(StatusCode(err))

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// StatusCode maps a service error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, fl.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, fl.ErrRunInProgress),
		errors.Is(err, fl.ErrDuplicateActiveClient),
		errors.Is(err, pkgerrors.ErrEntityExists):
		return http.StatusConflict
	case errors.Is(err, fl.ErrNoClientsRegistered),
		errors.Is(err, fl.ErrInsufficientClients),
		errors.Is(err, fl.ErrQuorumUnreachable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData),
		errors.Is(err, fl.ErrEmptyClientID),
		errors.Is(err, fl.ErrInvalidFraction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
