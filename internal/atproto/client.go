package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	xrpcPathPrefixConstant           = "/xrpc/"
	contentTypeHeaderConstant        = "Content-Type"
	acceptHeaderConstant             = "Accept"
	jsonContentTypeConstant          = "application/json"
	serviceEndpointFieldNameConstant = "service_endpoint"
	requiredValueMessageConstant     = "value required"
	absoluteURLRequiredMessage       = "absolute http(s) URL required"
	requestCreationErrorTemplate     = "create request: %w"
	requestSendErrorTemplate         = "send request: %w"
	responseReadErrorTemplate        = "read response: %w"
	httpSchemeConstant               = "http"
	httpsSchemeConstant              = "https"
	defaultRequestTimeoutConstant    = 30 * time.Second
	maximumErrorBodyLengthConstant   = 512
)

// Client issues XRPC queries and procedures against one service endpoint.
type Client struct {
	serviceEndpoint *url.URL
	httpClient      *http.Client
	headers         http.Header
}

// NewClient constructs a client for serviceEndpoint. A nil httpClient falls back
// to a plain client with the default request timeout.
func NewClient(serviceEndpoint string, httpClient *http.Client) (*Client, error) {
	parsedEndpoint, parseError := ParseServiceEndpoint(serviceEndpoint)
	if parseError != nil {
		return nil, parseError
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeoutConstant}
	}
	return &Client{serviceEndpoint: parsedEndpoint, httpClient: httpClient, headers: http.Header{}}, nil
}

// ParseServiceEndpoint validates that endpoint is an absolute http(s) URL.
func ParseServiceEndpoint(endpoint string) (*url.URL, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if len(trimmedEndpoint) == 0 {
		return nil, InvalidInputError{FieldName: serviceEndpointFieldNameConstant, Message: requiredValueMessageConstant}
	}
	parsedEndpoint, parseError := url.Parse(trimmedEndpoint)
	if parseError != nil {
		return nil, InvalidInputError{FieldName: serviceEndpointFieldNameConstant, Message: parseError.Error()}
	}
	if parsedEndpoint.Scheme != httpSchemeConstant && parsedEndpoint.Scheme != httpsSchemeConstant || len(parsedEndpoint.Host) == 0 {
		return nil, InvalidInputError{FieldName: serviceEndpointFieldNameConstant, Message: absoluteURLRequiredMessage}
	}
	return parsedEndpoint, nil
}

// ServiceEndpoint returns the base address of the client.
func (client *Client) ServiceEndpoint() string {
	return client.serviceEndpoint.String()
}

// SetHeader adds a header sent with every request issued by the client.
func (client *Client) SetHeader(name string, value string) {
	client.headers.Set(name, value)
}

func (client *Client) query(executionContext context.Context, method string, parameters url.Values, result any) error {
	requestURL := client.methodURL(method)
	if len(parameters) > 0 {
		requestURL.RawQuery = parameters.Encode()
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL.String(), nil)
	if requestError != nil {
		return fmt.Errorf(requestCreationErrorTemplate, requestError)
	}

	return client.do(request, result)
}

func (client *Client) procedure(executionContext context.Context, method string, payload []byte, result any) error {
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, client.methodURL(method).String(), bytes.NewReader(payload))
	if requestError != nil {
		return fmt.Errorf(requestCreationErrorTemplate, requestError)
	}
	request.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)

	return client.do(request, result)
}

func (client *Client) methodURL(method string) *url.URL {
	methodURL := *client.serviceEndpoint
	methodURL.Path = strings.TrimRight(methodURL.Path, "/") + xrpcPathPrefixConstant + method
	methodURL.RawQuery = ""
	return &methodURL
}

func (client *Client) do(request *http.Request, result any) error {
	request.Header.Set(acceptHeaderConstant, jsonContentTypeConstant)
	for headerName, headerValues := range client.headers {
		for _, headerValue := range headerValues {
			request.Header.Add(headerName, headerValue)
		}
	}

	response, sendError := client.httpClient.Do(request)
	if sendError != nil {
		return fmt.Errorf(requestSendErrorTemplate, sendError)
	}
	defer response.Body.Close()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return fmt.Errorf(responseReadErrorTemplate, readError)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeXRPCError(response.StatusCode, responseBody)
	}

	if result == nil || len(responseBody) == 0 {
		return nil
	}

	if decodingError := json.Unmarshal(responseBody, result); decodingError != nil {
		return responseDecodingFailure{cause: decodingError}
	}

	return nil
}

// responseDecodingFailure lets operations tell decoding failures apart from
// transport failures so they can be reported as ResponseDecodingError.
type responseDecodingFailure struct {
	cause error
}

func (failure responseDecodingFailure) Error() string {
	return failure.cause.Error()
}

func (failure responseDecodingFailure) Unwrap() error {
	return failure.cause
}

func decodeXRPCError(statusCode int, responseBody []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(responseBody, &body) == nil && (len(body.Error) > 0 || len(body.Message) > 0) {
		return XRPCError{StatusCode: statusCode, Name: body.Error, Message: body.Message}
	}

	message := strings.TrimSpace(string(responseBody))
	if len(message) > maximumErrorBodyLengthConstant {
		message = message[:maximumErrorBodyLengthConstant]
	}
	return XRPCError{StatusCode: statusCode, Message: message}
}

func wrapOperationError(operation OperationName, cause error) error {
	var decodingFailure responseDecodingFailure
	if errors.As(cause, &decodingFailure) {
		return ResponseDecodingError{Operation: operation, Cause: decodingFailure.cause}
	}
	return OperationError{Operation: operation, Cause: cause}
}

func encodePayload(operation OperationName, payload any) ([]byte, error) {
	payloadBytes, encodingError := json.Marshal(payload)
	if encodingError != nil {
		return nil, PayloadEncodingError{Operation: operation, Cause: encodingError}
	}
	return payloadBytes, nil
}
