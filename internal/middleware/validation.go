package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON decodes the request body into v and validates its struct tags.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return Validate(v)
}

// Validate checks v's struct tags and returns a readable error.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds maximum length of %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ValidateDocumentID validates a document ID from a URL.
func ValidateDocumentID(id string) error {
	return validate.Var(id, "required,max=64,printascii")
}

// ValidatePDF checks an upload's name and leading bytes look like a PDF.
func ValidatePDF(filename string, head []byte) error {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return errors.New("only PDF documents are supported")
	}
	if !bytes.HasPrefix(head, []byte("%PDF-")) {
		return errors.New("file is not a valid PDF")
	}
	return nil
}
