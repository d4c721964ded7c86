package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func MakeHandler(svc manager.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/runs", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			startRunEndpoint(svc),
			decodeRunReq,
			api.EncodeResponse,
			opts...,
		), "start-run").ServeHTTP)
		r.Get("/{runID}", otelhttp.NewHandler(kithttp.NewServer(
			getRunEndpoint(svc),
			decodeEntityReq("runID"),
			api.EncodeResponse,
			opts...,
		), "get-run").ServeHTTP)
	})

	mux.Route("/clients", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			registerClientEndpoint(svc),
			decodeClientReq,
			api.EncodeResponse,
			opts...,
		), "register-client").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listClientsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-clients").ServeHTTP)
		r.Delete("/{clientID}", otelhttp.NewHandler(kithttp.NewServer(
			removeClientEndpoint(svc),
			decodeEntityReq("clientID"),
			api.EncodeResponse,
			opts...,
		), "remove-client").ServeHTTP)
	})

	mux.Route("/rounds", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-rounds").ServeHTTP)
		r.Get("/{round}", otelhttp.NewHandler(kithttp.NewServer(
			getRoundEndpoint(svc),
			decodeRoundReq,
			api.EncodeResponse,
			opts...,
		), "get-round").ServeHTTP)
	})

	mux.Route("/parameters", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			latestParametersEndpoint(svc),
			kithttp.NopRequestDecoder,
			api.EncodeResponse,
			opts...,
		), "latest-parameters").ServeHTTP)
		r.Get("/{round}", otelhttp.NewHandler(kithttp.NewServer(
			getParametersEndpoint(svc),
			decodeRoundReq,
			api.EncodeResponse,
			opts...,
		), "get-parameters").ServeHTTP)
	})

	mux.Get("/health", supermq.Health("manager", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeRoundReq(_ context.Context, r *http.Request) (any, error) {
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return roundReq{round: round}, nil
}

func decodeRunReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req runReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeClientReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req clientReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}
