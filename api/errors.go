package api

import (
	"net/http"

	"github.com/cloudhut/kafka-web/kafka"
)

type errorResponse struct {
	Code    kafka.ErrorKind `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details"`
}

func newErrorResponse(err error) errorResponse {
	kind := kafka.KindOf(err)
	return errorResponse{
		Code:    kind,
		Message: kind.Category(),
		Details: err.Error(),
	}
}

func statusForKind(kind kafka.ErrorKind) int {
	switch kind {
	case kafka.KindInvalidArgument:
		return http.StatusBadRequest
	case kafka.KindNotFound:
		return http.StatusNotFound
	case kafka.KindActiveGroup, kafka.KindConflict:
		return http.StatusConflict
	case kafka.KindStubbornGroup:
		return http.StatusUnprocessableEntity
	case kafka.KindConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalidArgument(op string, err error) error {
	return kafka.NewError(kafka.KindInvalidArgument, op, err)
}
