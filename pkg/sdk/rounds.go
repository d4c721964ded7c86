package sdk

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/absmach/fedcoord/pkg/fl"
)

const (
	roundsEndpoint     = "/rounds"
	parametersEndpoint = "/parameters"
)

func (sdk *fedSDK) ListRounds(offset, limit uint64) (fl.RoundPage, error) {
	url := sdk.managerURL + roundsEndpoint + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return fl.RoundPage{}, err
	}

	var p fl.RoundPage
	if err := json.Unmarshal(body, &p); err != nil {
		return fl.RoundPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) GetRound(round uint64) (fl.RoundRecord, error) {
	url := sdk.managerURL + roundsEndpoint + "/" + strconv.FormatUint(round, 10)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return fl.RoundRecord{}, err
	}

	var r fl.RoundRecord
	if err := json.Unmarshal(body, &r); err != nil {
		return fl.RoundRecord{}, err
	}

	return r, nil
}

func (sdk *fedSDK) GetParameters(round uint64) (fl.ParameterSet, error) {
	return sdk.parameters(sdk.managerURL + parametersEndpoint + "/" + strconv.FormatUint(round, 10))
}

func (sdk *fedSDK) LatestParameters() (fl.ParameterSet, error) {
	return sdk.parameters(sdk.managerURL + parametersEndpoint)
}

func (sdk *fedSDK) parameters(url string) (fl.ParameterSet, error) {
	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return fl.ParameterSet{}, err
	}

	var p fl.ParameterSet
	if err := json.Unmarshal(body, &p); err != nil {
		return fl.ParameterSet{}, err
	}

	return p, nil
}
