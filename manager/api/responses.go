package api

import (
	"net/http"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*clientResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*parametersResponse)(nil)
)

type runResponse struct {
	manager.RunInfo
	created bool
}

func (r runResponse) Code() int {
	if r.created {
		return http.StatusAccepted
	}

	return http.StatusOK
}

func (r runResponse) Headers() map[string]string {
	if r.created {
		return map[string]string{
			"Location": "/runs/" + r.ID,
		}
	}

	return map[string]string{}
}

func (r runResponse) Empty() bool {
	return false
}

type clientResponse struct {
	registry.Proxy
	created bool
	deleted bool
}

func (c clientResponse) Code() int {
	if c.created {
		return http.StatusCreated
	}
	if c.deleted {
		return http.StatusNoContent
	}

	return http.StatusOK
}

func (c clientResponse) Headers() map[string]string {
	if c.created {
		return map[string]string{
			"Location": "/clients/" + c.ID,
		}
	}

	return map[string]string{}
}

func (c clientResponse) Empty() bool {
	return c.deleted
}

type listClientsResponse struct {
	registry.ProxyPage
}

func (l listClientsResponse) Code() int {
	return http.StatusOK
}

func (l listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listClientsResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundRecord
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	fl.RoundPage
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type parametersResponse struct {
	fl.ParameterSet
}

func (p parametersResponse) Code() int {
	return http.StatusOK
}

func (p parametersResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p parametersResponse) Empty() bool {
	return false
}
