package api

import (
	"errors"

	"github.com/absmach/fedcoord/pkg/api"
	"github.com/absmach/fedcoord/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var errZeroRounds = errors.New("number of rounds must be positive")

type runReq struct {
	Rounds   uint64         `json:"rounds"`
	Fit      fl.RoundConfig `json:"fit"`
	Evaluate fl.RoundConfig `json:"evaluate"`
}

func (r *runReq) validate() error {
	if r.Rounds == 0 {
		return errZeroRounds
	}

	return nil
}

type clientReq struct {
	ID string `json:"id"`
}

func (c *clientReq) validate() error {
	if c.ID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type roundReq struct {
	round uint64
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}
