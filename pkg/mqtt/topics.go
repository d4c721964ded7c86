package mqtt

import (
	"fmt"
	"strings"
)

const (
	requestsTopicTemplate  = "%s/clients/%s/requests"
	responsesTopicTemplate = "%s/clients/%s/responses"
	registryTopicTemplate  = "%s/clients/%s/registry"
	registerTopicTemplate  = "%s/clients/register"
	aliveTopicTemplate     = "%s/clients/alive"
	publishedTopicTemplate = "%s/rounds/published"
)

// Topics builds the topic names shared by the manager and its clients under
// a common base.
type Topics struct {
	Base string
}

func (t Topics) Requests(clientID string) string {
	return fmt.Sprintf(requestsTopicTemplate, t.Base, clientID)
}

func (t Topics) Responses(clientID string) string {
	return fmt.Sprintf(responsesTopicTemplate, t.Base, clientID)
}

// AllResponses matches the response topic of every client.
func (t Topics) AllResponses() string {
	return fmt.Sprintf(responsesTopicTemplate, t.Base, "+")
}

func (t Topics) Registry(clientID string) string {
	return fmt.Sprintf(registryTopicTemplate, t.Base, clientID)
}

func (t Topics) Register() string {
	return fmt.Sprintf(registerTopicTemplate, t.Base)
}

func (t Topics) Alive() string {
	return fmt.Sprintf(aliveTopicTemplate, t.Base)
}

func (t Topics) Published() string {
	return fmt.Sprintf(publishedTopicTemplate, t.Base)
}

// ClientID extracts the client id from a per-client topic.
func (t Topics) ClientID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/clients/")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", false
	}

	return id, true
}
