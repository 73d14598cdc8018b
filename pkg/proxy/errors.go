package proxy

import (
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/providers"
)

// HandleError classifies err into a fault and renders its client body.
// Provider, validation, timeout and unknown errors all map to the
// OpenAI error shape; upstream bodies and internal causes never reach the
// client.
//
// Example usage:
//
//	if err != nil {
//	    f, body := HandleError(err, requestID)
//	    WriteJSONResponse(w, f.HTTPStatus(), body)
//	    return
//	}
func HandleError(err error, requestID string) (*faults.Fault, *faults.ErrorResponse) {
	f := providers.Classify(err)
	if f == nil {
		f = faults.Internal("An internal error occurred. Please try again later.", nil)
	}
	return f, f.Response(requestID)
}

// WriteError writes err as a structured error response. It is used before
// a request has a coordinator, e.g. by middleware.
func WriteError(w http.ResponseWriter, err error, requestID string) {
	f, body := HandleError(err, requestID)
	for k, v := range f.Header() {
		w.Header()[k] = v
	}
	if werr := WriteJSONResponse(w, f.HTTPStatus(), body); werr != nil {
		slog.Warn("failed to write error response", "request_id", requestID, "error", werr)
	}
}
