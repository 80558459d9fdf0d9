package handlers

import (
	"net/http"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/apierror"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, &apierror.Error{
		Type:      apierror.ErrNotFound,
		Message:   "not found",
		RequestID: reqID,
	})
}
