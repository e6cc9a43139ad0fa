package rest

import (
	"github.com/bytedance/sonic"

	"nakula/internal/transport"
	"nakula/pkg/core"
)

// usedWeightHeader carries the request weight used in the current minute.
const usedWeightHeader = "X-Mbx-Used-Weight-1m"

type apiError struct {
	Code *int   `json:"code"`
	Msg  string `json:"msg"`
}

// Classify turns a status and body into a decoded result or a classified error.
//
//   - 2xx: raw passthrough for *string and *[]byte, discard for nil, otherwise
//     a sonic decode whose failure is a ClientError with CodeUnparsed.
//   - 4xx: ClientError from a {code,msg} body, or CodeUnparsed with the raw body.
//   - anything else: ServerError with the raw body.
func Classify(status int, body []byte, out any) error {
	return classifyResponse(&transport.Response{StatusCode: status, Body: body}, out)
}

func classifyResponse(resp *transport.Response, out any) error {
	switch {
	case resp.IsSuccess():
		return decodeSuccess(resp.StatusCode, resp.Body, out)
	case resp.IsClientError():
		return decodeClientError(resp.StatusCode, resp.Body)
	default:
		return &core.ServerError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
	}
}

func decodeSuccess(status int, body []byte, out any) error {
	switch dst := out.(type) {
	case nil:
		return nil
	case *string:
		*dst = string(body)
		return nil
	case *[]byte:
		*dst = append((*dst)[:0], body...)
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return core.NewDecodeError(status, string(body), err)
	}
	return nil
}

func decodeClientError(status int, body []byte) error {
	var e apiError
	if err := sonic.Unmarshal(body, &e); err != nil || e.Code == nil {
		return core.NewClientError(status, core.CodeUnparsed, string(body))
	}
	return core.NewClientError(status, *e.Code, e.Msg)
}
