package api

import (
	"context"
	"errors"

	"github.com/absmach/fedcoord/manager"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func startRunEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(runReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.StartRun(ctx, manager.RunRequest{
			Rounds:   req.Rounds,
			Fit:      req.Fit,
			Evaluate: req.Evaluate,
		})
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			RunInfo: run,
			created: true,
		}, nil
	}
}

func getRunEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			RunInfo: run,
		}, nil
	}
}

func registerClientEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(clientReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		proxy, err := svc.RegisterClient(ctx, req.ID)
		if err != nil {
			return clientResponse{}, err
		}

		return clientResponse{
			Proxy:   proxy,
			created: true,
		}, nil
	}
}

func listClientsEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListClients(ctx, req.offset, req.limit)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{
			ProxyPage: page,
		}, nil
	}
}

func removeClientEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.RemoveClient(ctx, req.id); err != nil {
			return clientResponse{}, err
		}

		return clientResponse{
			deleted: true,
		}, nil
	}
}

func listRoundsEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRoundsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRoundsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRounds(ctx, req.offset, req.limit)
		if err != nil {
			return listRoundsResponse{}, err
		}

		return listRoundsResponse{
			RoundPage: page,
		}, nil
	}
}

func getRoundEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(roundReq)
		if !ok {
			return roundResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}

		rec, err := svc.GetRound(ctx, req.round)
		if err != nil {
			return roundResponse{}, err
		}

		return roundResponse{
			RoundRecord: rec,
		}, nil
	}
}

func getParametersEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(roundReq)
		if !ok {
			return parametersResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}

		params, err := svc.GetParameters(ctx, req.round)
		if err != nil {
			return parametersResponse{}, err
		}

		return parametersResponse{
			ParameterSet: params,
		}, nil
	}
}

func latestParametersEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		params, err := svc.LatestParameters(ctx)
		if err != nil {
			return parametersResponse{}, err
		}

		return parametersResponse{
			ParameterSet: params,
		}, nil
	}
}
