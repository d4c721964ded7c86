package sdk

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

const runsEndpoint = "/runs"

type RunRequest struct {
	Rounds   uint64         `json:"rounds"`
	Fit      fl.RoundConfig `json:"fit"`
	Evaluate fl.RoundConfig `json:"evaluate"`
}

type Run struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Rounds     uint64    `json:"rounds"`
	Completed  uint64    `json:"completed"`
	LastRound  uint64    `json:"last_round,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (sdk *fedSDK) StartRun(req RunRequest) (Run, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Run{}, err
	}

	url := sdk.managerURL + runsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusAccepted)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) GetRun(id string) (Run, error) {
	url := sdk.managerURL + runsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}
