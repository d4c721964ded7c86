package sdk

import (
	"encoding/json"
	"net/http"
	"time"
)

const clientsEndpoint = "/clients"

type Client struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	NumSamples   uint64    `json:"num_samples"`
	LastError    string    `json:"last_error,omitempty"`
	Failures     int       `json:"failures"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

type ClientPage struct {
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Total   uint64   `json:"total"`
	Clients []Client `json:"clients"`
}

func (sdk *fedSDK) RegisterClient(id string) (Client, error) {
	data, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return Client{}, err
	}

	url := sdk.managerURL + clientsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return Client{}, err
	}

	var c Client
	if err := json.Unmarshal(body, &c); err != nil {
		return Client{}, err
	}

	return c, nil
}

func (sdk *fedSDK) ListClients(offset, limit uint64) (ClientPage, error) {
	url := sdk.managerURL + clientsEndpoint + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return ClientPage{}, err
	}

	var p ClientPage
	if err := json.Unmarshal(body, &p); err != nil {
		return ClientPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) RemoveClient(id string) error {
	url := sdk.managerURL + clientsEndpoint + "/" + id

	if _, err := sdk.processRequest(http.MethodDelete, url, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}
