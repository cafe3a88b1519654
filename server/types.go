package server

import (
	"errors"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
	"github.com/Lucifer7355/pii-anonymizer/masking"
)

// maxBatchSize caps the number of requests in one /anonymize/batch call.
const maxBatchSize = 100

// AnonymizeBody is the wire form of an anonymize.AnonymizationRequest. The
// pointer fields tell a missing key apart from its zero value.
type AnonymizeBody struct {
	RawData   *string              `json:"raw_data"`
	NamesList *[]string            `json:"names_list"`
	Options   *anonymize.OptionSet `json:"options"`
}

// Request checks that every field was sent.
func (b AnonymizeBody) Request() (anonymize.AnonymizationRequest, error) {
	switch {
	case b.RawData == nil:
		return anonymize.AnonymizationRequest{}, errors.New("raw_data is required")
	case b.NamesList == nil:
		return anonymize.AnonymizationRequest{}, errors.New("names_list is required")
	case b.Options == nil:
		return anonymize.AnonymizationRequest{}, errors.New("options is required")
	}
	return anonymize.AnonymizationRequest{
		RawData:   *b.RawData,
		NamesList: *b.NamesList,
		Options:   *b.Options,
	}, nil
}

type BatchRequest []AnonymizeBody
type BatchResponse []anonymize.AnonymizationResponse

type DetectResponse struct {
	Entities []masking.Entity `json:"entities"`
}

type APIKeyResponse struct {
	Key string `json:"key"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}
