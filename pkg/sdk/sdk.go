package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/absmach/fedcoord/pkg/fl"
)

const CTJSON string = "application/json"

var ErrUnexpectedStatus = errors.New("unexpected response code")

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// StartRun launches a background training run.
	//
	// example:
	//  run, _ := sdk.StartRun(sdk.RunRequest{Rounds: 3})
	//  fmt.Println(run.ID)
	StartRun(req RunRequest) (Run, error)

	// GetRun reports the progress of a run.
	//
	// example:
	//  run, _ := sdk.GetRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(run.State)
	GetRun(id string) (Run, error)

	// RegisterClient admits a client by id.
	//
	// example:
	//  client, _ := sdk.RegisterClient("client-1")
	//  fmt.Println(client.State)
	RegisterClient(id string) (Client, error)

	// ListClients lists registered clients.
	//
	// example:
	//  page, _ := sdk.ListClients(0, 10)
	//  fmt.Println(page.Total)
	ListClients(offset uint64, limit uint64) (ClientPage, error)

	// RemoveClient removes a client from the registry.
	//
	// example:
	//  _ = sdk.RemoveClient("client-1")
	RemoveClient(id string) error

	// ListRounds lists published round records.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page.Rounds)
	ListRounds(offset uint64, limit uint64) (fl.RoundPage, error)

	// GetRound gets the record of one published round.
	//
	// example:
	//  rec, _ := sdk.GetRound(2)
	//  fmt.Println(rec.Loss)
	GetRound(round uint64) (fl.RoundRecord, error)

	// GetParameters gets the parameter version a round published.
	//
	// example:
	//  params, _ := sdk.GetParameters(2)
	//  fmt.Println(params.Shapes())
	GetParameters(round uint64) (fl.ParameterSet, error)

	// LatestParameters gets the current global parameters.
	//
	// example:
	//  params, _ := sdk.LatestParameters()
	//  fmt.Println(params.Round)
	LatestParameters() (fl.ParameterSet, error)
}

type fedSDK struct {
	managerURL string
	client     *http.Client
}

type Config struct {
	ManagerURL      string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		managerURL: strings.TrimSuffix(cfg.ManagerURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if json.Unmarshal(body, &e) == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return body, nil
}

func pageQuery(offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	if len(queries) == 0 {
		return ""
	}

	return "?" + strings.Join(queries, "&")
}
