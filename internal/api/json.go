package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/putto11262002/roomsync/pkg/router"
)

// DecodeJson decodes the request body into v. An empty body leaves v untouched when
// optional is set.
func DecodeJson(r io.Reader, v any, optional bool) error {
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return router.NewJsonError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	return nil
}

func WriteJsonResponse(w http.ResponseWriter, v any) error {
	return WriteJsonResponseWithStatusCode(w, v, http.StatusOK)
}

func WriteJsonResponseWithStatusCode(w http.ResponseWriter, v any, code int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	err := encoder.Encode(v)
	if err != nil {
		return err
	}
	return nil
}
